// Package diskkit gives one file API over named disks backed by local
// storage, S3 or SFTP.
//
// A Registry maps disk names to driver configuration. A Storage resolves
// the active disk to an adapter, building it on first use and caching it,
// and routes every operation through the FileSystem interface.
//
// # Quick Start
//
//	import (
//	    "github.com/gobeaver/diskkit"
//	    _ "github.com/gobeaver/diskkit/driver/local"
//	    _ "github.com/gobeaver/diskkit/driver/s3"
//	)
//
//	reg, err := diskkit.LoadRegistry("disks.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	storage := diskkit.New(reg)
//	defer storage.Close()
//
//	err = storage.Use("local").Write(ctx, "a.txt", []byte("hi"))
//	data, err := storage.Use("local").Read(ctx, "a.txt")
//	names := storage.Use("s3").List(ctx, "/")
//
// # Registry file
//
//	disks:
//	  local:
//	    driver: local
//	    root: /srv/files
//	  s3:
//	    driver: s3
//	    s3: { bucket: my-bucket, key: AKIA..., secret: ..., region: eu-west-1 }
//	  sftp_disk:
//	    driver: sftp
//	    sftp: { host: files.example.com, username: deploy, password: ..., port: 22 }
//
// The drivers object_storage and remote_transfer are accepted as aliases
// of s3 and sftp. A disk with read_only: true rejects every write.
//
// # Error Handling
//
// Use never fails. Building an adapter may fail (an unknown disk, an
// unreachable SFTP host); the failure is logged, nothing is cached, and the
// next operation on that disk tries again. Operations report a
// *StorageError whose kind can be tested with errors.Is:
//
//	_, err := storage.Read(ctx, "missing.txt")
//	switch {
//	case errors.Is(err, diskkit.ErrNotFound):
//	case errors.Is(err, diskkit.ErrAdapterUnavailable):
//	case errors.Is(err, diskkit.ErrBackend):
//	}
//
// Exists, List and Find never return errors: failures are logged and
// reported as false or an empty result.
//
// # Concurrency
//
// Storage is safe for concurrent use. Adapter construction is serialised
// per disk name. Use changes the active disk for all callers; concurrent
// code should take a handle from Storage.Disk instead.
//
// # Drivers
//
// Drivers register themselves by kind with RegisterDriver from their init
// function:
//
//	local  - github.com/gobeaver/diskkit/driver/local
//	s3     - github.com/gobeaver/diskkit/driver/s3
//	sftp   - github.com/gobeaver/diskkit/driver/sftp
//	memory - github.com/gobeaver/diskkit/driver/memory
package diskkit
