package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	prometheusCallgrade "git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/prometheus"
	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrConvertToStringUrl = errors.New("failed to convert result url to string")

type MinioClient struct {
	Client         *minio.Client
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	BucketName     string
	PathPrefix     string
}

// NewMinioClient connects to the configured endpoint. Quality audits are
// stored under QUALITY_EXPORT_PATH_PREFIX.
func NewMinioClient() (*MinioClient, error) {
	client, err := minio.New(config.Conf.MinioEndpointURL, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Conf.MinioAccessKey, config.Conf.MinioSecretKey, ""),
		Secure: config.Conf.MinioSecure,
	})
	if err != nil {
		logging.Logger.Error("Failed to initialize MinIO client",
			zap.String("endpoint", config.Conf.MinioEndpointURL),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to MinIO",
		zap.String("endpoint", config.Conf.MinioEndpointURL),
		zap.String("bucket", config.Conf.MinioBucketName),
	)

	return &MinioClient{
		Client:         client,
		CircuitBreaker: newCircuitBreaker(),
		BucketName:     config.Conf.MinioBucketName,
		PathPrefix:     config.Conf.QualityExportPathPrefix,
	}, nil
}

func newCircuitBreaker() *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "minio",
		Interval: time.Duration(config.Conf.MinioIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.MinioConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn(
				"Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.MinioService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

func retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(max(config.Conf.MinioMaxRetryAttempts, 1)),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.MinioRetryBackoffMin) * time.Second),
		retry.MaxDelay(time.Duration(config.Conf.MinioRetryBackoffMax) * time.Second),
		retry.LastErrorOnly(true),
	}
}

// Upload stores buffer under the path prefix and returns the object URL.
func (m *MinioClient) Upload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error) {
	logging.Logger.Info("Starting MinIO upload",
		zap.String("object_key", objectKey),
		zap.Int("buffer_size", buffer.Len()),
	)

	url, err := m.CircuitBreaker.Execute(func() (any, error) {
		return m.doUpload(ctx, buffer, objectKey)
	})
	if err != nil {
		return "", err
	}

	urlStr, ok := url.(string)
	if !ok {
		return "", ErrConvertToStringUrl
	}

	return urlStr, nil
}

// Remove deletes an object stored by Upload.
func (m *MinioClient) Remove(ctx context.Context, objectKey string) error {
	_, err := m.CircuitBreaker.Execute(func() (any, error) {
		timer := prometheus.NewTimer(prometheusCallgrade.MinioOperationDuration.WithLabelValues("remove"))
		defer timer.ObserveDuration()

		ctxWithTimeout, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.MinioTimeout)*time.Second)
		defer cancel()

		err := m.Client.RemoveObject(ctxWithTimeout, m.BucketName, m.getKey(objectKey), minio.RemoveObjectOptions{})
		if err != nil {
			logging.Logger.Error("MinIO remove failed",
				zap.String("object_key", objectKey),
				zap.String("error", err.Error()),
			)
		}

		return nil, err
	})

	return err
}

func (m *MinioClient) doUpload(ctx context.Context, buffer *bytes.Buffer, objectKey string) (string, error) {
	timer := prometheus.NewTimer(prometheusCallgrade.MinioOperationDuration.WithLabelValues("upload"))
	defer timer.ObserveDuration()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.MinioTimeout)*time.Second)
	defer cancel()

	err := retry.Do(
		func() error {
			_, err := m.Client.PutObject(
				ctxWithTimeout,
				m.BucketName,
				m.getKey(objectKey),
				bytes.NewReader(buffer.Bytes()),
				int64(buffer.Len()),
				minio.PutObjectOptions{ContentType: contentType(objectKey)},
			)
			if err != nil {
				logging.Logger.Warn("MinIO upload attempt failed",
					zap.String("object_key", objectKey),
					zap.String("error", err.Error()),
				)
			}

			return err
		},
		retryOptions(ctxWithTimeout)...,
	)
	if err != nil {
		logging.Logger.Error("MinIO upload failed after all retry attempts",
			zap.String("object_key", objectKey),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	url := m.ObjectURL(objectKey)

	logging.Logger.Info("MinIO upload completed successfully",
		zap.String("object_key", objectKey),
		zap.String("url", url),
	)

	return url, nil
}

func (m *MinioClient) ObjectURL(objectKey string) string {
	scheme := "http"
	if config.Conf.MinioSecure {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s/%s/%s", scheme, config.Conf.MinioEndpointURL, m.BucketName, m.getKey(objectKey))
}

func (m *MinioClient) getKey(objectKey string) string {
	return path.Join(m.PathPrefix, objectKey)
}

func contentType(objectKey string) string {
	if path.Ext(objectKey) == ".xlsx" {
		return xlsxContentType
	}

	return "application/octet-stream"
}
