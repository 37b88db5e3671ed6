package rpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	sha256simd "github.com/minio/sha256-simd"

	"github.com/cuemby/avery/pkg/registry"
	"github.com/cuemby/avery/pkg/validation"
	"github.com/cuemby/avery/pkg/wire"
)

func decodeInto(payload []byte, v interface{}) error {
	if err := wire.Decode(payload, v); err != nil {
		return &Status{Code: StatusInvalidArgument, Message: err.Error()}
	}
	return nil
}

func asStatus(err error, fallback string) *Status {
	switch {
	case err == registry.ErrNotFound:
		return &Status{Code: StatusNotFound, Message: err.Error()}
	default:
		if _, ok := err.(*registry.VersionExistsError); ok {
			return &Status{Code: StatusAlreadyExists, Message: err.Error()}
		}
		if _, ok := err.(*registry.UnknownAttachmentError); ok {
			return &Status{Code: StatusInvalidArgument, Message: err.Error()}
		}
		return &Status{Code: fallback, Message: err.Error()}
	}
}

func handleList(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var in ListRequest
	if err := decodeInto(req.Payload, &in); err != nil {
		return err
	}
	fns, err := s.Registry.List(in.Filters, in.Ordering)
	if err != nil {
		return asStatus(err, StatusInternal)
	}
	if err := stream.SendValue(ListResponse{Functions: fns}); err != nil {
		return err
	}
	return stream.SendEnd()
}

func handleGet(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var in GetRequest
	if err := decodeInto(req.Payload, &in); err != nil {
		return err
	}
	fn, err := s.Registry.Get(in.Name, in.VersionReq)
	if err != nil {
		return asStatus(err, StatusInternal)
	}
	if err := stream.SendValue(GetResponse{Function: fn}); err != nil {
		return err
	}
	return stream.SendEnd()
}

func handleRegister(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var in RegisterRequest
	if err := decodeInto(req.Payload, &in); err != nil {
		return err
	}
	if err := validation.ValidateName(in.Function.Name); err != nil {
		return &Status{Code: StatusInvalidArgument, Message: err.Error()}
	}
	if err := validation.ValidateVersion(in.Function.Version); err != nil {
		return &Status{Code: StatusInvalidArgument, Message: err.Error()}
	}
	id, err := s.Registry.Insert(in.Function)
	if err != nil {
		return asStatus(err, StatusInternal)
	}
	if err := stream.SendValue(RegisterResponse{ID: id}); err != nil {
		return err
	}
	return stream.SendEnd()
}

func handleRegisterAttachment(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var in RegisterAttachmentRequest
	if err := decodeInto(req.Payload, &in); err != nil {
		return err
	}
	id, err := s.Registry.InsertAttachment(in.Attachment)
	if err != nil {
		return asStatus(err, StatusInternal)
	}
	if err := stream.SendValue(RegisterAttachmentResponse{ID: id}); err != nil {
		return err
	}
	return stream.SendEnd()
}

// handleUploadStreamedAttachment reads the attachment id, then streams
// every subsequent KindData frame straight through to the blob store's
// upload URL while hashing incrementally, rejecting a final mismatch
// against the attachment's declared checksum before it ever completes
// (spec §4.10: "server computes SHA-256 incrementally and rejects
// mismatches at EOS").
func handleUploadStreamedAttachment(ctx context.Context, s *Server, stream *Stream, req Frame) error {
	var start UploadStart
	if err := decodeInto(req.Payload, &start); err != nil {
		return err
	}
	att, err := s.Registry.GetAttachment(start.AttachmentID)
	if err != nil {
		return asStatus(err, StatusInternal)
	}
	if s.Blob == nil {
		return &Status{Code: StatusInternal, Message: "no blob storage configured"}
	}
	uploadURL, err := s.Blob.UploadURL(att)
	if err != nil {
		return &Status{Code: StatusInternal, Message: err.Error()}
	}

	pr, pw := io.Pipe()
	sum := sha256simd.New()
	uploadDone := make(chan error, 1)
	go func() {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, pr)
		if err != nil {
			pr.CloseWithError(err)
			uploadDone <- err
			return
		}
		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			uploadDone <- err
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			uploadDone <- fmt.Errorf("upload rejected: %s", resp.Status)
			return
		}
		uploadDone <- nil
	}()

	for {
		frame, err := stream.Recv()
		if err != nil {
			pw.CloseWithError(err)
			<-uploadDone
			return &Status{Code: StatusInternal, Message: err.Error()}
		}
		switch frame.Kind {
		case KindData:
			sum.Write(frame.Payload)
			if _, err := pw.Write(frame.Payload); err != nil {
				<-uploadDone
				return &Status{Code: StatusInternal, Message: err.Error()}
			}
		case KindEnd:
			pw.Close()
			if err := <-uploadDone; err != nil {
				return &Status{Code: StatusInternal, Message: err.Error()}
			}
			got := hex.EncodeToString(sum.Sum(nil))
			if att.SHA256 != "" && got != att.SHA256 {
				return &Status{Code: StatusChecksumMismatch, Message: fmt.Sprintf("want %s got %s", att.SHA256, got)}
			}
			if err := stream.SendValue(UploadStreamedAttachmentResponse{SHA256: got}); err != nil {
				return err
			}
			return stream.SendEnd()
		default:
			pw.CloseWithError(fmt.Errorf("unexpected frame kind during upload"))
			<-uploadDone
			return &Status{Code: StatusInvalidArgument, Message: "unexpected frame kind during upload"}
		}
	}
}
