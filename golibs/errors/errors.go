// Copyright 2023 The acquirecloud Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// General purpose error values. Services should prefer returning one of these
// (possibly wrapped via fmt.Errorf("...: %w", ErrXXX)) instead of inventing new
// sentinel errors, so that callers across the distributed system can reason about
// failures uniformly.
var (
	ErrExist         = errors.New("already exists")
	ErrNotExist      = errors.New("not found")
	ErrInvalid       = errors.New("invalid argument")
	ErrNotAuthorized = errors.New("not authorized")
	ErrInternal      = errors.New("internal error")
	ErrDataLoss      = errors.New("data loss")
	ErrExhausted     = errors.New("resource exhausted")
	ErrUnimplemented = errors.New("not implemented")
	ErrConflict      = errors.New("conflict")
	ErrCanceled      = errors.New("canceled")
	ErrClosed        = errors.New("closed")
	ErrCommunication = errors.New("communication error")
)

// jsonErrorMarker delimits a JSON-encoded object embedded into an error message by EmbedObject.
const jsonErrorMarker = "\x00josn\x00"

// Is reports whether err matches target. Unlike errors.Is, it also understands
// gRPC status errors: a status error is first translated to its general error
// equivalent via FromGRPCError before the comparison is made.
func Is(err, target error) bool {
	if errors.Is(err, target) {
		return true
	}
	if ge := FromGRPCError(err); ge != nil {
		return errors.Is(ge, target)
	}
	return false
}

// EmbedObject marshals obj to JSON and embeds it into err's message, so it can
// later be recovered by ExtractObject. obj and err must not be nil, and err must
// not already carry an embedded object.
func EmbedObject(obj any, err error) error {
	if err == nil {
		panic("errors.EmbedObject: err must not be nil")
	}
	if obj == nil {
		panic("errors.EmbedObject: obj must not be nil")
	}
	if _, ok := extractJSON(err.Error()); ok {
		panic("errors.EmbedObject: err already has an embedded object")
	}
	buf, mErr := json.Marshal(obj)
	if mErr != nil {
		panic(fmt.Sprintf("errors.EmbedObject: could not marshal obj: %v", mErr))
	}
	return fmt.Errorf("%s%s%s%w", jsonErrorMarker, string(buf), jsonErrorMarker, err)
}

// ExtractObject tries to find a JSON object embedded by EmbedObject in err's message
// and unmarshal it into target, which must be a non-nil pointer. It returns false if
// err is nil or no well-formed embedded object is found.
func ExtractObject(err error, target any) bool {
	if err == nil {
		return false
	}
	payload, ok := extractJSON(err.Error())
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(payload), target) == nil
}

func extractJSON(msg string) (string, bool) {
	start := strings.Index(msg, jsonErrorMarker)
	if start < 0 {
		return "", false
	}
	rest := msg[start+len(jsonErrorMarker):]
	end := strings.Index(rest, jsonErrorMarker)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
