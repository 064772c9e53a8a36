package clientcli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Formatter formats results for output.
type Formatter interface {
	FormatUpload(w io.Writer, results []UploadResult) error
	FormatDownload(w io.Writer, result *DownloadResult) error
	FormatDelete(w io.Writer, results []DeleteResult) error
	FormatList(w io.Writer, result *ListResult) error
	FormatStatus(w io.Writer, status *FileStatus) error
	FormatFile(w io.Writer, info *FileInfo) error
	FormatReconcile(w io.Writer, report *ReconcileReport) error
	FormatError(w io.Writer, err error) error
	FormatProfileList(w io.Writer, profiles []Profile, defaultName string, showSecrets bool) error
	FormatProfileShow(w io.Writer, profile Profile, isDefault, showSecrets bool) error
}

// NewFormatter returns the appropriate formatter based on flags.
func NewFormatter(jsonOutput, quiet bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &HumanFormatter{Quiet: quiet}
}

// HumanFormatter outputs human-readable text.
type HumanFormatter struct {
	Quiet bool
}

// FormatUpload prints one line per file. In quiet mode only the ids are
// printed so the output can be piped into other commands.
func (f *HumanFormatter) FormatUpload(w io.Writer, results []UploadResult) error {
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			_, _ = fmt.Fprintf(w, "Error: %s - %v\n", r.LocalPath, r.Err)
			continue
		}
		if f.Quiet {
			_, _ = fmt.Fprintln(w, r.File.ID)
			continue
		}
		_, _ = fmt.Fprintf(w, "Uploaded: %s -> %s (%s)\n", r.LocalPath, r.File.ID, formatSize(r.File.Size))
		_, _ = fmt.Fprintf(w, "  SHA-256: %s\n", r.File.Checksum)
	}
	return nil
}

// FormatDownload formats download result as human-readable text.
func (f *HumanFormatter) FormatDownload(w io.Writer, result *DownloadResult) error {
	if f.Quiet {
		return nil
	}
	if result.LocalPath == "-" {
		_, _ = fmt.Fprintf(w, "Downloaded: %s (%s)\n", result.ID, formatSize(result.Size))
	} else {
		_, _ = fmt.Fprintf(w, "Downloaded: %s -> %s (%s)\n", result.ID, result.LocalPath, formatSize(result.Size))
	}
	if result.ContentRange != "" {
		_, _ = fmt.Fprintf(w, "  Range: %s\n", result.ContentRange)
	}
	_, _ = fmt.Fprintf(w, "  ETag: %s\n", result.ETag)
	return nil
}

// FormatDelete formats delete results as human-readable text.
func (f *HumanFormatter) FormatDelete(w io.Writer, results []DeleteResult) error {
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			_, _ = fmt.Fprintf(w, "Error: %s - %v\n", r.ID, r.Err)
			continue
		}
		if !f.Quiet {
			_, _ = fmt.Fprintf(w, "Deleted: %s\n", r.ID)
		}
	}
	return nil
}

// FormatList prints the page as a table followed by a summary line.
func (f *HumanFormatter) FormatList(w io.Writer, result *ListResult) error {
	if len(result.Items) == 0 {
		_, _ = fmt.Fprintln(w, "No files found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTATE\tSIZE\tCREATED")
	for i := range result.Items {
		item := &result.Items[i]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			item.ID, truncate(item.Name, 40), item.State,
			formatSize(item.Size), item.CreatedAt.Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\n%d file(s) (%s total)\n", len(result.Items), formatSize(result.TotalSize()))
	if result.NextCursor != "" {
		_, _ = fmt.Fprintf(w, "Next page: use --cursor %q\n", result.NextCursor)
	}
	return nil
}

// FormatStatus formats a file status as human-readable text.
func (f *HumanFormatter) FormatStatus(w io.Writer, status *FileStatus) error {
	if f.Quiet {
		_, _ = fmt.Fprintln(w, status.State)
		return nil
	}
	_, _ = fmt.Fprintf(w, "ID:        %s\n", status.ID)
	_, _ = fmt.Fprintf(w, "Name:      %s\n", status.Name)
	_, _ = fmt.Fprintf(w, "State:     %s\n", status.State)
	_, _ = fmt.Fprintf(w, "Size:      %s\n", formatSize(status.Size))
	if status.Checksum != "" {
		_, _ = fmt.Fprintf(w, "SHA-256:   %s\n", status.Checksum)
	}
	_, _ = fmt.Fprintf(w, "Created:   %s\n", status.CreatedAt.Format(time.RFC3339))
	if status.FinalizedAt != nil {
		_, _ = fmt.Fprintf(w, "Finalized: %s\n", status.FinalizedAt.Format(time.RFC3339))
	}
	return nil
}

// FormatFile formats a single file record.
func (f *HumanFormatter) FormatFile(w io.Writer, info *FileInfo) error {
	if f.Quiet {
		return nil
	}
	_, _ = fmt.Fprintf(w, "%s  %s  %s  %s\n", info.ID, info.Name, info.State, formatSize(info.Size))
	return nil
}

// FormatReconcile formats a reconcile report.
func (f *HumanFormatter) FormatReconcile(w io.Writer, report *ReconcileReport) error {
	_, _ = fmt.Fprintf(w, "purged=%d failed_cleaned=%d orphans=%d stale_failed=%d dangling=%d skipped=%d errors=%d\n",
		report.Purged, report.FailedCleaned, report.OrphansFound, report.StaleFailed,
		report.Dangling, report.Skipped, report.Errors)
	return nil
}

// FormatError formats an error as human-readable text.
func (f *HumanFormatter) FormatError(w io.Writer, err error) error {
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return nil
}

// JSONFormatter outputs JSON.
type JSONFormatter struct{}

// FormatUpload formats upload results as JSON.
func (f *JSONFormatter) FormatUpload(w io.Writer, results []UploadResult) error {
	type jsonResult struct {
		LocalPath string    `json:"local_path"`
		File      *FileInfo `json:"file,omitempty"`
		Error     string    `json:"error,omitempty"`
	}

	output := make([]jsonResult, len(results))
	for i := range results {
		r := &results[i]
		jr := jsonResult{LocalPath: r.LocalPath}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		} else {
			jr.File = &r.File
		}
		output[i] = jr
	}

	return writeJSON(w, output)
}

// FormatDownload formats download result as JSON.
func (f *JSONFormatter) FormatDownload(w io.Writer, result *DownloadResult) error {
	return writeJSON(w, result)
}

// FormatDelete formats delete results as JSON.
func (f *JSONFormatter) FormatDelete(w io.Writer, results []DeleteResult) error {
	type jsonResult struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
		Error   string `json:"error,omitempty"`
	}

	output := struct {
		Results []jsonResult `json:"results"`
	}{
		Results: make([]jsonResult, len(results)),
	}

	for i, r := range results {
		jr := jsonResult{
			ID:      r.ID.String(),
			Deleted: r.Deleted,
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		output.Results[i] = jr
	}

	return writeJSON(w, output)
}

// FormatList formats list results as JSON.
func (f *JSONFormatter) FormatList(w io.Writer, result *ListResult) error {
	return writeJSON(w, result)
}

func (f *JSONFormatter) FormatStatus(w io.Writer, status *FileStatus) error {
	return writeJSON(w, status)
}

func (f *JSONFormatter) FormatFile(w io.Writer, info *FileInfo) error {
	return writeJSON(w, info)
}

func (f *JSONFormatter) FormatReconcile(w io.Writer, report *ReconcileReport) error {
	return writeJSON(w, report)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := struct {
		Error string `json:"error"`
	}{
		Error: err.Error(),
	}
	return writeJSON(w, output)
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatSize renders n in binary units with one decimal.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

// FormatProfileList prints one row per profile. The default is marked with "*".
func (f *HumanFormatter) FormatProfileList(w io.Writer, profiles []Profile, defaultName string, showSecrets bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  NAME\tENDPOINT\tTOKEN")
	for i := range profiles {
		p := &profiles[i]
		marker := " "
		if p.Name == defaultName {
			marker = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s %s\t%s\t%s\n",
			marker, truncate(p.Name, 20), truncate(p.Endpoint, 50), maskSecret(p.Token, showSecrets))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// FormatProfileShow formats a single profile as human-readable text.
func (f *HumanFormatter) FormatProfileShow(w io.Writer, profile Profile, isDefault, showSecrets bool) error {
	_, _ = fmt.Fprintf(w, "Name:     %s", profile.Name)
	if isDefault {
		_, _ = fmt.Fprintf(w, " (default)")
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Endpoint: %s\n", profile.Endpoint)
	_, _ = fmt.Fprintf(w, "Token:    %s\n", maskSecret(profile.Token, showSecrets))
	if profile.TokenFile != "" {
		_, _ = fmt.Fprintf(w, "Token file: %s\n", profile.TokenFile)
	}
	return nil
}

type jsonProfile struct {
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint"`
	Token     string `json:"token"`
	TokenFile string `json:"token_file,omitempty"`
	Default   bool   `json:"default"`
}

// FormatProfileList formats a list of profiles as JSON.
func (f *JSONFormatter) FormatProfileList(w io.Writer, profiles []Profile, defaultName string, showSecrets bool) error {
	output := struct {
		Profiles []jsonProfile `json:"profiles"`
	}{
		Profiles: make([]jsonProfile, len(profiles)),
	}

	for i := range profiles {
		p := &profiles[i]
		output.Profiles[i] = jsonProfile{
			Name:      p.Name,
			Endpoint:  p.Endpoint,
			Token:     maskSecret(p.Token, showSecrets),
			TokenFile: p.TokenFile,
			Default:   p.Name == defaultName,
		}
	}

	return writeJSON(w, output)
}

// FormatProfileShow formats a single profile as JSON.
func (f *JSONFormatter) FormatProfileShow(w io.Writer, profile Profile, isDefault, showSecrets bool) error {
	return writeJSON(w, jsonProfile{
		Name:      profile.Name,
		Endpoint:  profile.Endpoint,
		Token:     maskSecret(profile.Token, showSecrets),
		TokenFile: profile.TokenFile,
		Default:   isDefault,
	})
}

// maskSecret keeps the first and last four characters of long secrets.
func maskSecret(secret string, showSecrets bool) string {
	if showSecrets {
		return secret
	}
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
