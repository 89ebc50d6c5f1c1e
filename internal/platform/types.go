// Package platform defines the BridgeNLP resource types and binds them to
// the backend endpoints.
package platform

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Function is a user-authored code function. A function with an empty ID has
// not been persisted yet; DraftKey is the client-side identity used to match
// an optimistic draft with the server acknowledgement, since the draft has
// no id to match by.
type Function struct {
	ID                 string `json:"id"`
	DraftKey           string `json:"-"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	Code               string `json:"code"`
	Language           string `json:"language"`
	IsPublic           bool   `json:"isPublic"`
	OwnerID            string `json:"userId"`
	OriginalFunctionID string `json:"originalFunctionId,omitempty"`
}

// Persisted reports whether the function exists server-side.
func (f Function) Persisted() bool { return f.ID != "" }

// Execution is one record of a function run. Records are created server-side
// as a side effect of running a function and are read-only here.
type Execution struct {
	ID           string          `json:"execution_id"`
	FunctionName string          `json:"function_name"`
	Parameters   json.RawMessage `json:"parameters"`
	Result       json.RawMessage `json:"result"`
	Code         string          `json:"code"`
	Status       string          `json:"status"`
	Timestamp    string          `json:"timestamp"`
}

// Profile is the user profile stored by the backend.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// RejectedError is a request the server answered 200 for but refused at the
// application level ({"success": false, ...}).
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected by server", e.Op)
	}
	return fmt.Sprintf("%s rejected by server: %s", e.Op, e.Message)
}

// VisibilityTab mirrors the functions page tabs.
type VisibilityTab string

const (
	TabAll      VisibilityTab = "all"
	TabPersonal VisibilityTab = "personal"
	TabPublic   VisibilityTab = "public"
)

// FilterByVisibility returns the functions matching a tab.
func FilterByVisibility(funcs []Function, tab VisibilityTab) []Function {
	out := make([]Function, 0, len(funcs))
	for _, f := range funcs {
		switch tab {
		case TabPersonal:
			if f.IsPublic {
				continue
			}
		case TabPublic:
			if !f.IsPublic {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

// SearchFunctions returns the functions whose name or description contains
// the query, case-insensitively. An empty query matches everything.
func SearchFunctions(funcs []Function, query string) []Function {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return funcs
	}
	out := make([]Function, 0, len(funcs))
	for _, f := range funcs {
		if strings.Contains(strings.ToLower(f.Name), q) ||
			strings.Contains(strings.ToLower(f.Description), q) {
			out = append(out, f)
		}
	}
	return out
}

// SearchExecutions returns the records whose function name contains the
// query, case-insensitively.
func SearchExecutions(records []Execution, query string) []Execution {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}
	out := make([]Execution, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.FunctionName), q) {
			out = append(out, r)
		}
	}
	return out
}

// DefaultFunctions is the fixed ordered seed set created for a fresh
// account whose library is empty.
func DefaultFunctions() []Function {
	return []Function{
		{
			Name:        "Hello World (Public)",
			Description: "A simple public Hello World function",
			Code:        "def hello_world():\n    print('Hello, World!')",
			Language:    "python",
			IsPublic:    true,
		},
		{
			Name:        "Hello World (Private)",
			Description: "A simple private Hello World function",
			Code:        "def hello_world():\n    print('Hello, World! (Private)')",
			Language:    "python",
			IsPublic:    false,
		},
	}
}
