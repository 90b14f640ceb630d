/*
Copyright 2024 Derrick J. Wippler

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

package transport

import "time"

type HealthStatus string

const (
	HealthStatusPass HealthStatus = "pass"
	HealthStatusFail HealthStatus = "fail"

	ComponentDatastore = "datastore"
	ComponentCache     = "cache"
)

// HealthResponse is the subset of draft-inadarei-api-health-check-06 entityqueue reports
type HealthResponse struct {
	Status  HealthStatus       `json:"status"`
	Version string             `json:"version,omitempty"`
	Output  string             `json:"output,omitempty"`
	Checks  map[string][]Check `json:"checks,omitempty"`
}

type Check struct {
	ComponentType string       `json:"componentType,omitempty"`
	Status        HealthStatus `json:"status"`
	Time          string       `json:"time,omitempty"`
	Output        string       `json:"output,omitempty"`
}

// AddCheck records the outcome of probing a component. Any failed check fails the whole response.
func (r *HealthResponse) AddCheck(name, componentType string, now time.Time, err error) {
	check := Check{
		ComponentType: componentType,
		Time:          now.UTC().Format(time.RFC3339),
		Status:        HealthStatusPass,
	}
	if err != nil {
		check.Status = HealthStatusFail
		check.Output = err.Error()
		r.Status = HealthStatusFail
	}

	if r.Checks == nil {
		r.Checks = make(map[string][]Check)
	}
	r.Checks[name] = append(r.Checks[name], check)
}
