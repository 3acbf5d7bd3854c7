// Package sarif emits SARIF (Static Analysis Results Interchange
// Format) v2.1.0 logs. Only the subset of the schema that code scanning
// uploads consume is modeled.
// Specification: https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html
package sarif

// Version is the SARIF schema version emitted.
const Version = "2.1.0"

// SchemaURI is the JSON schema reference embedded in every log.
const SchemaURI = "https://json.schemastore.org/sarif-2.1.0.json"

// Log is the root SARIF object.
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []Run  `json:"runs"`
}

// NewLog wraps runs in a versioned log envelope.
func NewLog(runs ...Run) *Log {
	return &Log{Version: Version, Schema: SchemaURI, Runs: runs}
}

// Run is a single run of an analysis tool.
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

// Tool describes the analysis tool that produced the results.
type Tool struct {
	Driver ToolComponent `json:"driver"`
}

// ToolComponent is the driver of an analysis tool.
type ToolComponent struct {
	Name           string                `json:"name"`
	Version        string                `json:"version,omitempty"`
	InformationURI string                `json:"informationUri,omitempty"`
	Rules          []ReportingDescriptor `json:"rules,omitempty"`
}

// ReportingDescriptor describes one rule the tool can report.
type ReportingDescriptor struct {
	ID               string                    `json:"id"`
	Name             string                    `json:"name,omitempty"`
	ShortDescription *MultiformatMessageString `json:"shortDescription,omitempty"`
	Properties       Properties                `json:"properties,omitempty"`
}

// MultiformatMessageString is a message in plain text form.
type MultiformatMessageString struct {
	Text string `json:"text"`
}

// Properties is an open-ended property bag.
type Properties map[string]any

// Level is the SARIF severity level of a result.
type Level string

// Levels defined by the specification.
const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNote    Level = "note"
	LevelNone    Level = "none"
)

// Result is a single finding.
type Result struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           int               `json:"ruleIndex"`
	Level               Level             `json:"level,omitempty"`
	Message             Message           `json:"message"`
	Locations           []Location        `json:"locations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
	Properties          Properties        `json:"properties,omitempty"`
}

// Message is a result message.
type Message struct {
	Text string `json:"text"`
}

// Location is a location in an artifact.
type Location struct {
	PhysicalLocation *PhysicalLocation `json:"physicalLocation,omitempty"`
}

// PhysicalLocation points into a file.
type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation,omitempty"`
	Region           *Region           `json:"region,omitempty"`
}

// ArtifactLocation identifies a file by URI.
type ArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId,omitempty"`
}

// Region is a contiguous range of lines within an artifact.
type Region struct {
	StartLine int              `json:"startLine,omitempty"`
	EndLine   int              `json:"endLine,omitempty"`
	Snippet   *ArtifactContent `json:"snippet,omitempty"`
}

// ArtifactContent is file content embedded in a region.
type ArtifactContent struct {
	Text string `json:"text"`
}
