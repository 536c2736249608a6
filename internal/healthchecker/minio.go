package healthchecker

import (
	"bytes"
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/minio"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minioCheckTimeout = 30 * time.Second

// CheckMinio round-trips a small object through the export bucket.
func CheckMinio() error {
	ctx, cancel := context.WithTimeout(context.Background(), minioCheckTimeout)
	defer cancel()

	minioClient, err := minio.NewMinioClient()
	if err != nil {
		logging.Logger.Error("failed to create new minio client", zap.String("error", err.Error()))
		return err
	}

	objectKey := "healthcheck_" + uuid.New().String() + ".bin"

	_, err = minioClient.Upload(ctx, bytes.NewBufferString("ok"), objectKey)
	if err != nil {
		return err
	}

	return minioClient.Remove(ctx, objectKey)
}
