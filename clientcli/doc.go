// Package clientcli provides a client library for filekeep servers.
//
// It supports upload, download, status, list, rename and delete with bearer
// token authentication, plus profile-based configuration for managing
// connections to multiple servers.
//
// # Basic Usage
//
//	client, err := clientcli.New(&clientcli.Config{
//		Endpoint: "http://localhost:5708",
//		Token:    os.Getenv("FILEKEEP_TOKEN"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	results, err := client.Upload(ctx, clientcli.UploadOptions{
//		Paths: []string{"./report.pdf"},
//	})
//
// Uploads return the file id assigned by the server; every other call takes
// that id.
//
// # Profile Configuration
//
//	configFile, err := clientcli.LoadConfigFile(clientcli.DefaultConfigPath())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	profile, err := configFile.GetProfile("production")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cfg, err := clientcli.ConfigFromProfile(profile)
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := clientcli.New(cfg)
//
// # Output Formatting
//
//	formatter := clientcli.NewFormatter(jsonOutput, quiet)
//	formatter.FormatUpload(os.Stdout, results)
package clientcli
