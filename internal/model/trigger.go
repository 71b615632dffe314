package model

// TriggerKind names a job an external scheduler can request over Kafka.
type TriggerKind string

const (
	TriggerMaintainInstances TriggerKind = "maintain_instances"
	TriggerGenerateInstances TriggerKind = "generate_instances"
	TriggerSendReminders     TriggerKind = "send_reminders"
)

// Trigger is the payload consumed from the trigger topic.
type Trigger struct {
	Kind       TriggerKind `json:"kind"`
	TemplateID int64       `json:"template_id,omitempty"`
	Weeks      int         `json:"weeks,omitempty"`
	Scope      *Scope      `json:"scope,omitempty"`
}
