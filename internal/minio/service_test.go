package minio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectKeysAndURLs(t *testing.T) {
	client := &MinioClient{BucketName: "callgrade", PathPrefix: "quality-audits"}

	require.Equal(t, "quality-audits/audit.xlsx", client.getKey("audit.xlsx"))
	require.Contains(t, client.ObjectURL("audit.xlsx"), "/callgrade/quality-audits/audit.xlsx")

	withoutPrefix := &MinioClient{BucketName: "callgrade"}
	require.Equal(t, "audit.xlsx", withoutPrefix.getKey("audit.xlsx"))
}

func TestContentType(t *testing.T) {
	require.Equal(t, xlsxContentType, contentType("quality-audit_20250501_20250601_x.xlsx"))
	require.Equal(t, "application/octet-stream", contentType("healthcheck.bin"))
}
