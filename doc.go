// Package filekeep is a file storage service core that keeps a relational
// metadata record and a blob store object in agreement despite partial
// failures, while streaming payloads of any size without buffering them.
//
// # Key Components
//
//   - Service: upload coordinator and download streamer over a MetaDataRepo and a BlobStore
//   - Reconciler: periodic repair of abandoned uploads, failed uploads and orphaned blobs
//   - MetaDataRepo: versioned record persistence (PostgreSQL, SQLite)
//   - BlobStore: streamed object storage (filesystem, S3)
//
// # Lifecycle
//
// Every upload first allocates a PENDING record, then streams bytes into the
// blob store, then finalizes the record with the computed checksum and size:
//
//	PENDING ──► FINALIZED ──► DELETED
//	   │                        ▲
//	   └──────► FAILED ─────────┘
//
// Bytes are served only for FINALIZED records. Every mutation carries the
// version the caller read, so of two racing writers exactly one wins and the
// other gets ErrConflict.
//
// # Example Usage
//
//	svc := filekeep.NewService(repo, blobs, filekeep.ServiceConfig{})
//
//	ctx = filekeep.WithIdentity(ctx, filekeep.Identity{
//	    Subject: "alice",
//	    Scopes:  []filekeep.Scope{filekeep.ScopeRead, filekeep.ScopeWrite},
//	})
//
//	rec, err := svc.Upload(ctx, filekeep.UploadRequest{Name: "a.txt", DeclaredSize: 5}, strings.NewReader("hello"))
//
//	dl, err := svc.Download(ctx, rec.ID, filekeep.RangeSpec{})
//	defer dl.Body.Close()
//
// See the http package for the REST API and the database, filesystem and
// s3store packages for the backends.
package filekeep
