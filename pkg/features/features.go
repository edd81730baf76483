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

package features

import (
	"fmt"
	"strings"
)

const (
	HTTPScaledObjectController = "httpscaledobject-controller"
	ScaleController            = "scale-controller"
)

var (
	// EnabledControllers is the map of controllers to enable or disable
	// '*' means "all enabled by default controllers"
	// 'foo' means "enable 'foo'"
	// '-foo' means "disable 'foo'"
	// explicit entries win over '*' regardless of their position
	EnabledControllers = make(map[string]bool)

	ValidControllers = []string{
		HTTPScaledObjectController, ScaleController,
	}
)

// ValidateControllers checks the list of controllers for any invalid entries.
func ValidateControllers(controllerList string) error {
	controllers := strings.Split(controllerList, ",")
	for _, controller := range controllers {
		trimmed := strings.TrimSpace(controller)
		if trimmed == "*" {
			continue
		}

		controllerName := strings.TrimPrefix(trimmed, "-")
		if !isValidController(controllerName) {
			return fmt.Errorf("invalid controller specified: %s", controllerName)
		}
	}
	return nil
}

func isValidController(name string) bool {
	for _, valid := range ValidControllers {
		if name == valid {
			return true
		}
	}
	return false
}

// InitControllers initializes the map of enabled controllers based on a comma-separated list.
func InitControllers(controllerList string) {
	wildcard := false
	controllers := strings.Split(controllerList, ",")
	for _, controller := range controllers {
		trimmed := strings.TrimSpace(controller)
		if trimmed == "*" {
			wildcard = true
			continue
		}

		if strings.HasPrefix(trimmed, "-") {
			EnabledControllers[trimmed[1:]] = false
		} else {
			EnabledControllers[trimmed] = true
		}
	}
	if wildcard {
		EnableAllControllers()
	}
}

// IsControllerEnabled checks if a controller is enabled.
func IsControllerEnabled(name string) bool {
	enabled, exists := EnabledControllers[name]
	if !exists {
		return false // If not specified, consider it disabled to be safe.
	}
	return enabled
}

// EnableAllControllers enables every known controller not explicitly set.
func EnableAllControllers() {
	for _, name := range ValidControllers {
		if _, set := EnabledControllers[name]; !set {
			EnabledControllers[name] = true
		}
	}
}
