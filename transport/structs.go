package transport

import (
	"encoding/json"
	"time"

	"github.com/kapetan-io/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// The wire types below are carried over DUH as a google.protobuf.Struct, which allows clients to
// speak either JSON or protobuf without generated code.

// QueueInfo is the public representation of a queue
type QueueInfo struct {
	ID                   string            `json:"id"`
	UUID                 string            `json:"uuid,omitempty"`
	Label                string            `json:"label"`
	// Status is nil when omitted. A new queue is enabled and an updated queue keeps its status.
	Status               *bool             `json:"status,omitempty"`
	TargetType           string            `json:"target_type"`
	MinSize              int               `json:"min_size"`
	MaxSize              int               `json:"max_size"`
	ActAsQueue           bool              `json:"act_as_queue"`
	Handler              string            `json:"handler"`
	HandlerConfiguration map[string]string `json:"handler_configuration,omitempty"`
	Dependencies         Dependencies      `json:"dependencies"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Enabled reports the status of the queue, a queue without a status is enabled
func (q QueueInfo) Enabled() bool {
	return q.Status == nil || *q.Status
}

// Bool returns a pointer to v for the optional fields of requests
func Bool(v bool) *bool {
	return &v
}

type Dependencies struct {
	Module []string `json:"module,omitempty"`
}

type QueuesInfoRequest struct {
	ID string `json:"id"`
}

type QueuesDeleteRequest struct {
	IDs []string `json:"ids"`
}

type QueuesListRequest struct {
	Pivot string `json:"pivot,omitempty"`
	Limit int    `json:"limit,omitempty"`
	// TargetType when provided lists only the queues which reference the entity type
	TargetType string `json:"target_type,omitempty"`
}

type QueuesListResponse struct {
	Items []QueueInfo `json:"items"`
}

// FormField describes a single field a handler contributes to a form
type FormField struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Default     string   `json:"default,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Options     []string `json:"options,omitempty"`
}

type Subqueue struct {
	Name      string      `json:"name"`
	Queue     string      `json:"queue"`
	UUID      string      `json:"uuid,omitempty"`
	Label     string      `json:"label"`
	Module    string      `json:"module,omitempty"`
	UID       string      `json:"uid,omitempty"`
	Form      []FormField `json:"form,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type SubqueuesListRequest struct {
	Queue string `json:"queue"`
	Pivot string `json:"pivot,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type SubqueuesListResponse struct {
	Items []Subqueue `json:"items"`
}

type SubqueuesDeleteRequest struct {
	Queue string `json:"queue"`
	Name  string `json:"name"`
}

type Handler struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// SupportsMultipleSubqueues is true if queues using this handler may have more than one subqueue
	SupportsMultipleSubqueues bool        `json:"supports_multiple_subqueues"`
	SettingsForm              []FormField `json:"settings_form,omitempty"`
}

type HandlersListResponse struct {
	Items []Handler `json:"items"`
}

type EntityType struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Provider string `json:"provider"`
}

type EntityTypesListResponse struct {
	Items []EntityType `json:"items"`
}

type ModulesUninstallRequest struct {
	Module string `json:"module"`
}

type ModulesUninstallResponse struct {
	// EntityTypes are the entity types which were removed along with the module
	EntityTypes []string `json:"entity_types"`
}

type CacheChecksumRequest struct {
	Tags []string `json:"tags"`
}

// CacheChecksumResponse carries the checksum as a string since Struct numbers are float64, which
// cannot hold every int64.
type CacheChecksumResponse struct {
	Checksum int64 `json:"checksum,string"`
}

// ToStruct converts a wire type into the Struct sent as the payload of a request or response
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Errorf("while marshalling '%T': %w", v, err)
	}

	var s structpb.Struct
	if err := s.UnmarshalJSON(b); err != nil {
		return nil, errors.Errorf("while converting '%T' to struct: %w", v, err)
	}
	return &s, nil
}

// FromStruct converts the payload of a request or response into a wire type
func FromStruct(s *structpb.Struct, v any) error {
	b, err := s.MarshalJSON()
	if err != nil {
		return errors.Errorf("while converting struct to '%T': %w", v, err)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return NewInvalidOption("payload is invalid; %s", err)
	}
	return nil
}
