// Package slick is a minimal client for the Slick test-management REST API,
// covering just the resources the reporter files results against.
package slick

// RunStatus is the lifecycle state of a testrun.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
)

// ResultStatus is the reported outcome of a single test.
type ResultStatus string

const (
	StatusPass       ResultStatus = "PASS"
	StatusFail       ResultStatus = "FAIL"
	StatusBrokenTest ResultStatus = "BROKEN_TEST"
	StatusSkipped    ResultStatus = "SKIPPED"
	StatusNotTested  ResultStatus = "NOT_TESTED"
	StatusNoResult   ResultStatus = "NO_RESULT"
)

// Ref is a lightweight reference to another resource, embedded in payloads
// instead of the full document.
type Ref struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Project struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	Releases   []Release   `json:"releases,omitempty"`
	Components []Component `json:"components,omitempty"`
}

func (p Project) Ref() Ref {
	return Ref{ID: p.ID, Name: p.Name}
}

type Release struct {
	ID     string  `json:"id,omitempty"`
	Name   string  `json:"name"`
	Builds []Build `json:"builds,omitempty"`
}

func (r Release) Ref() Ref {
	return Ref{ID: r.ID, Name: r.Name}
}

type Build struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

func (b Build) Ref() Ref {
	return Ref{ID: b.ID, Name: b.Name}
}

type Component struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

func (c Component) Ref() Ref {
	return Ref{ID: c.ID, Name: c.Name}
}

type Testplan struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Project   Ref    `json:"project,omitempty"`
	IsPrivate bool   `json:"isprivate"`
	CreatedBy string `json:"createdBy,omitempty"`
}

type Testcase struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Project Ref    `json:"project,omitempty"`
}

func (tc Testcase) Ref() Ref {
	return Ref{ID: tc.ID, Name: tc.Name}
}

// Testrun groups the results of one reporter invocation. Times are epoch
// milliseconds, as the Slick API expects.
type Testrun struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	TestplanID  string    `json:"testplanid,omitempty"`
	Project     Ref       `json:"project,omitempty"`
	Release     Ref       `json:"release,omitempty"`
	Build       Ref       `json:"build,omitempty"`
	State       RunStatus `json:"state,omitempty"`
	RunStarted  int64     `json:"runStarted,omitempty"`
	RunFinished int64     `json:"runFinished,omitempty"`
}

func (tr Testrun) Ref() Ref {
	return Ref{ID: tr.ID, Name: tr.Name}
}

// Result is one filed test outcome. RunLength, Started and End are epoch
// milliseconds.
type Result struct {
	ID        string       `json:"id,omitempty"`
	Testrun   Ref          `json:"testrun,omitempty"`
	Testcase  Ref          `json:"testcase,omitempty"`
	Project   Ref          `json:"project,omitempty"`
	Release   Ref          `json:"release,omitempty"`
	Build     Ref          `json:"build,omitempty"`
	Component *Ref         `json:"component,omitempty"`
	Status    ResultStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	RunLength int64        `json:"runlength"`
	Started   int64        `json:"started,omitempty"`
	End       int64        `json:"end,omitempty"`
}

// VersionInfo is the server's self-description, used as a connection check.
type VersionInfo struct {
	ProductName   string `json:"productName"`
	VersionString string `json:"versionString"`
}
