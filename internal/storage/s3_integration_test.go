//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/cloo-solutions/replygate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client_RoundTrip(t *testing.T) {
	ctx := context.Background()
	sc := testutil.NewS3Container(ctx, t)
	defer sc.Terminate(ctx)

	c, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        sc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     sc.AccessKey,
		SecretAccessKey: sc.SecretKey,
		Bucket:          "replygate-documents",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, c.EnsureBucket(ctx))
	require.NoError(t, c.EnsureBucket(ctx))

	require.NoError(t, c.PutObjectText(ctx, "faq/shipping.md", "Orders ship within two days."))

	text, err := c.GetObjectText(ctx, "faq/shipping.md")
	require.NoError(t, err)
	assert.Equal(t, "Orders ship within two days.", text)

	_, err = c.GetObjectText(ctx, "faq/missing.md")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
