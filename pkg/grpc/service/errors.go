package service

import (
	"context"
	"errors"
	"io/fs"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/config"
)

// toStatus maps a pipeline error onto a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, errs.ErrConfig), errors.Is(err, config.ErrInvalidConfig):
		code = codes.InvalidArgument
	case errors.Is(err, fs.ErrNotExist):
		code = codes.NotFound
	case errors.Is(err, errs.ErrParse):
		code = codes.DataLoss
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
