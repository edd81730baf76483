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

package types

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	httpv1alpha1 "github.com/vllm-project/aibrix-http-scaler/api/http/v1alpha1"
)

// Validate checks the fields of an HTTPScaledObject that do not depend on
// other objects.
func Validate(hso *httpv1alpha1.HTTPScaledObject) field.ErrorList {
	var errs field.ErrorList
	spec := field.NewPath("spec")

	hostPath := spec.Child("host")
	if hso.Spec.Host == "" {
		errs = append(errs, field.Required(hostPath, "host is required"))
	} else {
		for _, msg := range validation.IsDNS1123Subdomain(NormalizeHost(hso.Spec.Host)) {
			errs = append(errs, field.Invalid(hostPath, hso.Spec.Host, msg))
		}
	}

	ref := spec.Child("scaleTargetRef")
	if hso.Spec.ScaleTargetRef.Deployment == "" {
		errs = append(errs, field.Required(ref.Child("deployment"), "deployment is required"))
	} else {
		for _, msg := range validation.IsDNS1123Subdomain(hso.Spec.ScaleTargetRef.Deployment) {
			errs = append(errs, field.Invalid(ref.Child("deployment"), hso.Spec.ScaleTargetRef.Deployment, msg))
		}
	}
	if hso.Spec.ScaleTargetRef.Service == "" {
		errs = append(errs, field.Required(ref.Child("service"), "service is required"))
	} else {
		for _, msg := range validation.IsDNS1035Label(hso.Spec.ScaleTargetRef.Service) {
			errs = append(errs, field.Invalid(ref.Child("service"), hso.Spec.ScaleTargetRef.Service, msg))
		}
	}
	for _, msg := range validation.IsValidPortNum(int(hso.Spec.ScaleTargetRef.Port)) {
		errs = append(errs, field.Invalid(ref.Child("port"), hso.Spec.ScaleTargetRef.Port, msg))
	}

	if r := hso.Spec.Replicas; r != nil {
		replicas := spec.Child("replicas")
		if r.Min != nil && *r.Min < 0 {
			errs = append(errs, field.Invalid(replicas.Child("min"), *r.Min, "must be greater than or equal to 0"))
		}
		if r.Max != nil && *r.Max < 1 {
			errs = append(errs, field.Invalid(replicas.Child("max"), *r.Max, "must be greater than or equal to 1"))
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			errs = append(errs, field.Invalid(replicas.Child("min"), *r.Min, fmt.Sprintf("must be less than or equal to max (%d)", *r.Max)))
		}
	}
	if v := hso.Spec.TargetPendingRequests; v != nil && *v < 1 {
		errs = append(errs, field.Invalid(spec.Child("targetPendingRequests"), *v, "must be greater than 0"))
	}
	if v := hso.Spec.ScaledownPeriod; v != nil && *v < 0 {
		errs = append(errs, field.Invalid(spec.Child("scaledownPeriod"), *v, "must be greater than or equal to 0"))
	}

	if m := hso.Spec.ScalingMetric; m != nil {
		metric := spec.Child("scalingMetric")
		if m.Concurrency != nil && m.RequestRate != nil {
			errs = append(errs, field.Forbidden(metric, "concurrency and requestRate are mutually exclusive"))
		}
		if c := m.Concurrency; c != nil && c.TargetValue != nil && *c.TargetValue < 1 {
			errs = append(errs, field.Invalid(metric.Child("concurrency", "targetValue"), *c.TargetValue, "must be greater than 0"))
		}
		if rr := m.RequestRate; rr != nil {
			rate := metric.Child("requestRate")
			if rr.TargetValue != nil && *rr.TargetValue < 1 {
				errs = append(errs, field.Invalid(rate.Child("targetValue"), *rr.TargetValue, "must be greater than 0"))
			}
			if rr.Window != nil && rr.Window.Duration <= 0 {
				errs = append(errs, field.Invalid(rate.Child("window"), rr.Window.Duration.String(), "must be positive"))
			}
			if rr.Granularity != nil && rr.Granularity.Duration <= 0 {
				errs = append(errs, field.Invalid(rate.Child("granularity"), rr.Granularity.Duration.String(), "must be positive"))
			}
			if rr.Window != nil && rr.Granularity != nil && rr.Granularity.Duration > rr.Window.Duration {
				errs = append(errs, field.Invalid(rate.Child("granularity"), rr.Granularity.Duration.String(), "must not exceed window"))
			}
		}
	}

	if to := hso.Spec.Timeouts; to != nil && to.ConditionWait != nil && to.ConditionWait.Duration < 0 {
		errs = append(errs, field.Invalid(spec.Child("timeouts", "conditionWait"), to.ConditionWait.Duration.String(), "must not be negative"))
	}
	return errs
}

// IsValid reports whether hso passes Validate. Invalid objects neither route
// nor claim their host.
func IsValid(hso *httpv1alpha1.HTTPScaledObject) bool {
	return len(Validate(hso)) == 0
}
