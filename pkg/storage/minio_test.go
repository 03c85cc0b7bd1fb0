package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	assert.Equal(t, "documents/doc-1/report.pdf", ObjectName("doc-1", "report.pdf"))
	assert.Equal(t, "documents/doc-1/passwd.pdf", ObjectName("doc-1", "../../etc/passwd.pdf"))
}

func TestPresignedURL_IsSignedLocally(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	a := &Archive{client: client, bucket: "pdfchat", expiry: 10 * time.Minute}

	raw, err := a.PresignedURL(context.Background(), "doc-1", "report.pdf")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u.Path, "/pdfchat/documents/doc-1/report.pdf"))
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
