package command

// IssueKind classifies why a command was rejected.
type IssueKind string

const (
	AssemblyBusyIssue                 IssueKind = "AssemblyBusyIssue"
	HCDBusyIssue                      IssueKind = "HCDBusyIssue"
	IdNotAvailableIssue               IssueKind = "IdNotAvailableIssue"
	MissingKeyIssue                   IssueKind = "MissingKeyIssue"
	OtherIssue                        IssueKind = "OtherIssue"
	ParameterValueOutOfRangeIssue     IssueKind = "ParameterValueOutOfRangeIssue"
	RequiredAssemblyUnavailableIssue  IssueKind = "RequiredAssemblyUnavailableIssue"
	RequiredHCDUnavailableIssue       IssueKind = "RequiredHCDUnavailableIssue"
	RequiredSequencerUnavailableIssue IssueKind = "RequiredSequencerUnavailableIssue"
	RequiredServiceUnavailableIssue   IssueKind = "RequiredServiceUnavailableIssue"
	UnresolvedLocationsIssue          IssueKind = "UnresolvedLocationsIssue"
	UnsupportedCommandInStateIssue    IssueKind = "UnsupportedCommandInStateIssue"
	UnsupportedCommandIssue           IssueKind = "UnsupportedCommandIssue"
	WrongInternalStateIssue           IssueKind = "WrongInternalStateIssue"
	WrongNumberOfParametersIssue      IssueKind = "WrongNumberOfParametersIssue"
	WrongParameterTypeIssue           IssueKind = "WrongParameterTypeIssue"
	WrongPrefixIssue                  IssueKind = "WrongPrefixIssue"
	WrongUnitsIssue                   IssueKind = "WrongUnitsIssue"
)

var issueKinds = map[IssueKind]bool{
	AssemblyBusyIssue:                 true,
	HCDBusyIssue:                      true,
	IdNotAvailableIssue:               true,
	MissingKeyIssue:                   true,
	OtherIssue:                        true,
	ParameterValueOutOfRangeIssue:     true,
	RequiredAssemblyUnavailableIssue:  true,
	RequiredHCDUnavailableIssue:       true,
	RequiredSequencerUnavailableIssue: true,
	RequiredServiceUnavailableIssue:   true,
	UnresolvedLocationsIssue:          true,
	UnsupportedCommandInStateIssue:    true,
	UnsupportedCommandIssue:           true,
	WrongInternalStateIssue:           true,
	WrongNumberOfParametersIssue:      true,
	WrongParameterTypeIssue:           true,
	WrongPrefixIssue:                  true,
	WrongUnitsIssue:                   true,
}

// Known reports whether k is one of the defined issue kinds.
func (k IssueKind) Known() bool { return issueKinds[k] }

// Issue is the reason attached to an Invalid response. It is a value, not
// an error: rejecting a command is a normal outcome.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

func NewIssue(kind IssueKind, message string) Issue {
	return Issue{Kind: kind, Message: message}
}

func (i Issue) String() string { return string(i.Kind) + ": " + i.Message }
