/*
Copyright 2025 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package patch

import (
	"encoding/json"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

type Operation string

const (
	// Add replaces the member when the target location already exists.
	Add Operation = "add"
	// Remove requires the target location to exist.
	Remove Operation = "remove"
)

// JSONPatch is an RFC 6902 patch document.
type JSONPatch []Item

type Item struct {
	Operation Operation   `json:"op"`
	Path      string      `json:"path"`
	Value     interface{} `json:"value,omitempty"`
}

func NewJSONPatch(items ...Item) *JSONPatch {
	res := make(JSONPatch, 0, len(items))
	res = append(res, items...)
	return &res
}

func (jp *JSONPatch) Append(op Operation, path string, val interface{}) *JSONPatch {
	switch op {
	case Add:
		*jp = append(*jp, Item{Operation: op, Path: path, Value: val})
	case Remove:
		*jp = append(*jp, Item{Operation: op, Path: path})
	}
	return jp
}

func (jp JSONPatch) Len() int {
	return len(jp)
}

func (jp *JSONPatch) Marshal() ([]byte, error) {
	return json.Marshal(jp)
}

// ToClientPatch wraps the document for client.Patch.
func (jp *JSONPatch) ToClientPatch() (client.Patch, error) {
	bytes, err := jp.Marshal()
	if err != nil {
		return nil, err
	}
	return client.RawPatch(types.JSONPatchType, bytes), nil
}
