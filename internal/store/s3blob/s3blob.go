// Package s3blob implements the overflow blob store on S3, behind a circuit
// breaker so a struggling bucket degrades saves instead of stalling them.
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

// Store implements store.Blob over an S3 bucket.
type Store struct {
	client  *s3.Client
	bucket  string
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewStore creates an S3-backed blob store.
func NewStore(client *s3.Client, bucket string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "s3-overflow",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("blob store circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Store{client: client, bucket: bucket, breaker: breaker, logger: logger}
}

func (s *Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.breaker.Execute(func() (any, error) {
		_, putErr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		return nil, putErr
	})
	if err != nil {
		return "", s.mapError(err, "failed to store blob "+key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.breaker.Execute(func() (any, error) {
		resp, getErr := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if getErr != nil {
			return nil, getErr
		}
		defer resp.Body.Close()
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, s.mapError(err, "failed to fetch blob "+key)
	}
	return out.([]byte), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (any, error) {
		_, delErr := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return nil, delErr
	})
	if err != nil {
		return s.mapError(err, "failed to delete blob "+key)
	}
	return nil
}

func (s *Store) mapError(err error, message string) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return appErrors.NewUnavailable(message+": circuit open", err)
	}

	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return appErrors.NewNotFound(message)
	}

	if coded, ok := err.(interface{ ErrorCode() string }); ok {
		switch coded.ErrorCode() {
		case "NoSuchKey":
			return appErrors.NewNotFound(message)
		case "ExpiredToken", "ExpiredTokenException":
			return appErrors.NewAuthExpired(message+": credentials rejected", err)
		case "SlowDown", "ServiceUnavailable", "RequestTimeout":
			return appErrors.NewUnavailable(message, err)
		}
	}

	return appErrors.NewInternal(message, err)
}
