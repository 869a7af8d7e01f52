package ops

import (
	"fmt"
	"net/http"
	"sort"
)

// ParamSpec describes one named parameter of an operation.
type ParamSpec struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Operation maps a caller-facing operation name onto one remote endpoint.
// The remote contract is uniform, so the whole catalog is data.
type Operation struct {
	Name        string      `json:"name"`
	Method      string      `json:"method"`
	Endpoint    string      `json:"endpoint"`
	Params      []ParamSpec `json:"params,omitempty"`
	Description string      `json:"description"`
}

func required(name, desc string) ParamSpec {
	return ParamSpec{Name: name, Required: true, Description: desc}
}

func optional(name, desc string) ParamSpec {
	return ParamSpec{Name: name, Description: desc}
}

// crudFamily builds the uniform get/add/update/delete operations for one
// entity kind. Every supervision entity follows the same endpoint shape.
func crudFamily(entity, plural string) []Operation {
	lower := lowerFirst(entity)
	return []Operation{
		{
			Name:        "get" + plural,
			Method:      http.MethodGet,
			Endpoint:    "Get" + plural,
			Description: fmt.Sprintf("List all %s defined on the server", lowerFirst(plural)),
		},
		{
			Name:        "get" + entity,
			Method:      http.MethodGet,
			Endpoint:    "Get" + entity,
			Params:      []ParamSpec{required("name", entity+" name")},
			Description: fmt.Sprintf("Get one %s by name", lower),
		},
		{
			Name:     "add" + entity,
			Method:   http.MethodPost,
			Endpoint: "Add" + entity,
			Params: []ParamSpec{
				required("name", entity+" name"),
				optional("description", "Free-text description"),
			},
			Description: fmt.Sprintf("Create a %s", lower),
		},
		{
			Name:     "update" + entity,
			Method:   http.MethodPost,
			Endpoint: "Update" + entity,
			Params: []ParamSpec{
				required("name", entity+" name"),
				optional("description", "Free-text description"),
			},
			Description: fmt.Sprintf("Update an existing %s", lower),
		},
		{
			Name:        "delete" + entity,
			Method:      http.MethodPost,
			Endpoint:    "Delete" + entity,
			Params:      []ParamSpec{required("name", entity+" name")},
			Description: fmt.Sprintf("Delete a %s", lower),
		},
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]|0x20) + s[1:]
}

// Catalog is the full operation set exposed to callers. Session management
// (login/logout) is not listed here; it belongs to the lifecycle controller,
// not to the stateless wrappers.
var Catalog = buildCatalog()

func buildCatalog() []Operation {
	ops := []Operation{
		// Variables
		{
			Name:        "getVariables",
			Method:      http.MethodGet,
			Endpoint:    "GetVariables",
			Description: "List all variables and their current states",
		},
		{
			Name:        "getVariable",
			Method:      http.MethodGet,
			Endpoint:    "GetVariable",
			Params:      []ParamSpec{required("name", "Variable name")},
			Description: "Get one variable's current state",
		},
		{
			Name:     "setVariable",
			Method:   http.MethodGet,
			Endpoint: "SetVariable",
			Params: []ParamSpec{
				required("name", "Variable name"),
				required("value", "New value"),
			},
			Description: "Set a variable's value",
		},
		// Alarms
		{
			Name:        "getCurrentAlarms",
			Method:      http.MethodGet,
			Endpoint:    "GetCurrentAlarms",
			Description: "List alarms currently raised on the server",
		},
		{
			Name:        "getAlarm",
			Method:      http.MethodGet,
			Endpoint:    "GetAlarm",
			Params:      []ParamSpec{required("id", "Alarm identifier")},
			Description: "Get one alarm by identifier",
		},
		{
			Name:     "acknowledgeAlarmById",
			Method:   http.MethodGet,
			Endpoint: "AcknowledgeAlarmById",
			Params: []ParamSpec{
				required("id", "Alarm identifier"),
				optional("comment", "Operator comment"),
			},
			Description: "Acknowledge an alarm",
		},
		{
			Name:     "cancelAlarm",
			Method:   http.MethodGet,
			Endpoint: "CancelAlarm",
			Params: []ParamSpec{
				required("id", "Alarm identifier"),
				optional("comment", "Operator comment"),
			},
			Description: "Cancel an alarm",
		},
		// Scenarios get start/stop on top of the CRUD family
		{
			Name:        "startScenario",
			Method:      http.MethodGet,
			Endpoint:    "StartScenario",
			Params:      []ParamSpec{required("name", "Scenario name")},
			Description: "Start a scenario",
		},
		{
			Name:        "stopScenario",
			Method:      http.MethodGet,
			Endpoint:    "StopScenario",
			Params:      []ParamSpec{required("name", "Scenario name")},
			Description: "Stop a running scenario",
		},
		// Options
		{
			Name:        "getOptions",
			Method:      http.MethodGet,
			Endpoint:    "GetOptions",
			Description: "List server options",
		},
		{
			Name:        "getOption",
			Method:      http.MethodGet,
			Endpoint:    "GetOption",
			Params:      []ParamSpec{required("name", "Option name")},
			Description: "Get one server option",
		},
		{
			Name:     "setOption",
			Method:   http.MethodGet,
			Endpoint: "SetOption",
			Params: []ParamSpec{
				required("name", "Option name"),
				required("value", "Option value"),
			},
			Description: "Set a server option",
		},
		// License
		{
			Name:        "getLicenseInfo",
			Method:      http.MethodGet,
			Endpoint:    "GetLicenseInfo",
			Description: "Get server license information",
		},
		// User messages
		{
			Name:     "sendUserMessage",
			Method:   http.MethodGet,
			Endpoint: "SendUserMessage",
			Params: []ParamSpec{
				required("user", "Target user name"),
				required("message", "Message text"),
			},
			Description: "Send a message to a connected user",
		},
	}

	for _, family := range [][2]string{
		{"Area", "Areas"},
		{"Group", "Groups"},
		{"Protocol", "Protocols"},
		{"Holiday", "Holidays"},
		{"Instruction", "Instructions"},
		{"Report", "Reports"},
		{"Scenario", "Scenarios"},
	} {
		ops = append(ops, crudFamily(family[0], family[1])...)
	}

	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Find looks an operation up by its caller-facing name.
func Find(name string) (*Operation, bool) {
	for i := range Catalog {
		if Catalog[i].Name == name {
			return &Catalog[i], true
		}
	}
	return nil, false
}
