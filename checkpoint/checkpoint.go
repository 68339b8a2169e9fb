// Package checkpoint decorates errors with the caller position and optional
// key/value context (offsets, indices, file names) of the place where they passed by.
// Each error added to a checkpoint can be checked by errors.Is and retrieved by errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// From just wraps an error by a new checkpoint which adds some caller information to the error.
// It returns nil, if err == nil.
func From(err error) error {
	if err == nil {
		return nil
	}

	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	return newCheckpoint(err, nil, nil)
}

// Wrap adds a checkpoint to prev and describes it by err, so that both
// errors.Is(result, prev) and errors.Is(result, err) hold:
//  var ErrReadBlock = errors.New("could not read block")
//
//  func readBlock() error {
//  	_, err := image.ReadAt(buf, offset)
//  	return checkpoint.Wrap(err, ErrReadBlock)
//  }
// Returns nil if prev == nil.
func Wrap(prev, err error) error {
	if prev == nil {
		return nil
	}

	if prev == io.EOF {
		return io.EOF
	}

	return newCheckpoint(err, prev, nil)
}

// With works like Wrap but also attaches context as alternating key and value pairs.
// A trailing key without value is ignored.
//  checkpoint.With(err, ErrCorruptChain, "index", 17, "start", 4)
// prev may be nil, in which case err alone is decorated.
func With(prev, err error, keyValues ...interface{}) error {
	if prev == nil && err == nil {
		return nil
	}

	fields := make(map[string]interface{}, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		fields[fmt.Sprint(keyValues[i])] = keyValues[i+1]
	}

	if prev == nil {
		return newCheckpoint(err, nil, fields)
	}
	return newCheckpoint(err, prev, fields)
}

// Fields collects the context of all checkpoints in the chain of err.
// Outer checkpoints win if the same key exists more than once.
func Fields(err error) map[string]interface{} {
	result := map[string]interface{}{}
	for err != nil {
		if c, ok := err.(*checkpoint); ok {
			for k, v := range c.fields {
				if _, exists := result[k]; !exists {
					result[k] = v
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return result
}

func newCheckpoint(err, prev error, fields map[string]interface{}) *checkpoint {
	// Skip newCheckpoint and the exported constructor.
	_, file, line, ok := runtime.Caller(2)

	return &checkpoint{
		err:    err,
		prev:   prev,
		fields: fields,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err    error
	prev   error
	fields map[string]interface{}

	callerOk bool
	file     string
	line     int
}

// Error renders the whole chain on a single line, outermost first:
//  fat.go:120: corrupt block chain (index=7): transfer.go:88: ...
func (e *checkpoint) Error() string {
	var parts []string

	if e.err != nil {
		parts = append(parts, e.err.Error())
	}

	if len(e.fields) > 0 {
		keys := make([]string, 0, len(e.fields))
		for k := range e.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, e.fields[k])
		}
		parts = append(parts, "("+strings.Join(pairs, " ")+")")
	}

	if e.callerOk {
		parts = append([]string{fmt.Sprintf("%s:%d:", e.file, e.line)}, parts...)
	}
	head := strings.Join(parts, " ")

	if e.prev == nil {
		return head
	}
	return head + ": " + e.prev.Error()
}

func (e *checkpoint) Unwrap() error {
	if e.prev == nil {
		return nil
	}
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return e.err != nil && errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return e.err != nil && errors.As(e.err, target)
}
