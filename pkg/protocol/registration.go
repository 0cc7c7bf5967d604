package protocol

// Subjects on which a component announces its HTTP connection.
const (
	SubjectRegister   = "csw.location.register"
	SubjectUnregister = "csw.location.unregister"
)

// Registration describes how to reach a component's command server.
type Registration struct {
	Name           string `json:"name"`
	ComponentType  string `json:"componentType"`
	ConnectionType string `json:"connectionType"`
	Prefix         string `json:"prefix"`
	URI            string `json:"uri"`
}
