package archive

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Open selects an Archiver implementation using environment variables.
//
//	STUDYCORE_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	STUDYCORE_ARCHIVE_FS_ROOT: directory root when driver=fs (default ./archivedata)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Archiver, error) {
	driver := os.Getenv("STUDYCORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("STUDYCORE_ARCHIVE_FS_ROOT")
		return NewFilesystem(root)
	case DriverS3:
		bucket := os.Getenv("STUDYCORE_ARCHIVE_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("STUDYCORE_ARCHIVE_S3_BUCKET required for s3 driver")
		}
		return NewS3(ctx, S3Config{
			Bucket:    bucket,
			Region:    os.Getenv("STUDYCORE_ARCHIVE_S3_REGION"),
			Endpoint:  os.Getenv("STUDYCORE_ARCHIVE_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("STUDYCORE_ARCHIVE_S3_PATH_STYLE"), "true"),
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}
