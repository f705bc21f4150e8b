package service

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Requests and responses travel as google.protobuf.Struct. The field names
// below are the wire contract.
//
// SortRequest:   input, output (required); chunk_dir, chunk_size,
//                parallelism, compression, merge_strategy, raw_chunking,
//                remove_chunks (optional overrides of the server config).
// SortResponse:  chunks, records, chunk_ms, sort_ms, merge_ms.
// VerifyRequest: input, output (required); compression of the output.
// VerifyResponse: input_records, output_records, same_multiset, sorted,
//                first_unsorted_line.

// SortRequest asks the server to sort one file it can reach.
type SortRequest struct {
	Input  string
	Output string

	ChunkDir      string
	ChunkSize     int
	Parallelism   int
	Compression   string
	MergeStrategy string
	RawChunking   bool
	RemoveChunks  bool
}

// SortResponse reports a finished sort.
type SortResponse struct {
	Chunks        int
	Records       int64
	ChunkDuration time.Duration
	SortDuration  time.Duration
	MergeDuration time.Duration
}

// VerifyRequest asks the server to compare an input with its sorted output.
type VerifyRequest struct {
	Input       string
	Output      string
	Compression string
}

// VerifyResponse is the comparison outcome. A mismatch is a result, not an
// error.
type VerifyResponse struct {
	InputRecords      int64
	OutputRecords     int64
	SameMultiset      bool
	Sorted            bool
	FirstUnsortedLine int
}

func (r SortRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"input":          r.Input,
		"output":         r.Output,
		"chunk_dir":      r.ChunkDir,
		"chunk_size":     r.ChunkSize,
		"parallelism":    r.Parallelism,
		"compression":    r.Compression,
		"merge_strategy": r.MergeStrategy,
		"raw_chunking":   r.RawChunking,
		"remove_chunks":  r.RemoveChunks,
	})
}

func sortRequestFromStruct(s *structpb.Struct) (SortRequest, error) {
	f := fields{s}
	req := SortRequest{
		Input:         f.str("input"),
		Output:        f.str("output"),
		ChunkDir:      f.str("chunk_dir"),
		ChunkSize:     int(f.num("chunk_size")),
		Parallelism:   int(f.num("parallelism")),
		Compression:   f.str("compression"),
		MergeStrategy: f.str("merge_strategy"),
		RawChunking:   f.boolean("raw_chunking"),
		RemoveChunks:  f.boolean("remove_chunks"),
	}
	if req.Input == "" || req.Output == "" {
		return req, fmt.Errorf("input and output are required")
	}
	if req.ChunkSize < 0 || req.Parallelism < 0 {
		return req, fmt.Errorf("chunk_size and parallelism must not be negative")
	}
	return req, nil
}

func (r SortResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"chunks":   r.Chunks,
		"records":  r.Records,
		"chunk_ms": r.ChunkDuration.Milliseconds(),
		"sort_ms":  r.SortDuration.Milliseconds(),
		"merge_ms": r.MergeDuration.Milliseconds(),
	})
}

func sortResponseFromStruct(s *structpb.Struct) SortResponse {
	f := fields{s}
	return SortResponse{
		Chunks:        int(f.num("chunks")),
		Records:       int64(f.num("records")),
		ChunkDuration: time.Duration(f.num("chunk_ms")) * time.Millisecond,
		SortDuration:  time.Duration(f.num("sort_ms")) * time.Millisecond,
		MergeDuration: time.Duration(f.num("merge_ms")) * time.Millisecond,
	}
}

func (r VerifyRequest) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"input":       r.Input,
		"output":      r.Output,
		"compression": r.Compression,
	})
}

func verifyRequestFromStruct(s *structpb.Struct) (VerifyRequest, error) {
	f := fields{s}
	req := VerifyRequest{
		Input:       f.str("input"),
		Output:      f.str("output"),
		Compression: f.str("compression"),
	}
	if req.Input == "" || req.Output == "" {
		return req, fmt.Errorf("input and output are required")
	}
	return req, nil
}

func (r VerifyResponse) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"input_records":       r.InputRecords,
		"output_records":      r.OutputRecords,
		"same_multiset":       r.SameMultiset,
		"sorted":              r.Sorted,
		"first_unsorted_line": r.FirstUnsortedLine,
	})
}

func verifyResponseFromStruct(s *structpb.Struct) VerifyResponse {
	f := fields{s}
	return VerifyResponse{
		InputRecords:      int64(f.num("input_records")),
		OutputRecords:     int64(f.num("output_records")),
		SameMultiset:      f.boolean("same_multiset"),
		Sorted:            f.boolean("sorted"),
		FirstUnsortedLine: int(f.num("first_unsorted_line")),
	}
}

// fields reads typed values out of a Struct, treating missing or
// mistyped fields as zero.
type fields struct {
	s *structpb.Struct
}

func (f fields) value(name string) *structpb.Value {
	if f.s == nil {
		return nil
	}
	return f.s.GetFields()[name]
}

func (f fields) str(name string) string {
	return f.value(name).GetStringValue()
}

func (f fields) num(name string) float64 {
	return f.value(name).GetNumberValue()
}

func (f fields) boolean(name string) bool {
	return f.value(name).GetBoolValue()
}
