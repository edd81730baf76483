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

package interceptor

import "errors"

var (
	// ErrRouteNotFound means no HTTPScaledObject claims the request host.
	ErrRouteNotFound = errors.New("no route for host")
	// ErrScaleTimeout means the target had no ready replica before the hold
	// timeout elapsed or the interceptor shut down.
	ErrScaleTimeout = errors.New("timed out waiting for target to become ready")
)
