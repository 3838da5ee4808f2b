// Package types declares payloads of karfab API.
package types

import "time"

// Record is an indexed entry of a KAR file.
type Record struct {
	LSID     string    `json:"lsid"`
	Entry    string    `json:"entry"`
	Type     string    `json:"type"`
	Handler  string    `json:"handler"`
	Archive  string    `json:"archive"`
	Object   bool      `json:"object"`
	CachedAt time.Time `json:"cachedAt"`
}

// Object is a cached object.
type Object struct {
	LSID     string    `json:"lsid"`
	Entry    string    `json:"entry"`
	Type     string    `json:"type"`
	Handler  string    `json:"handler"`
	Archive  string    `json:"archive"`
	CachedAt time.Time `json:"cachedAt"`

	// Actor is set when the object is actor metadata.
	Actor *Actor `json:"actor,omitempty"`

	// Documentation is set when the object is documentation.
	Documentation *Documentation `json:"documentation,omitempty"`
}

type Actor struct {
	Name          string            `json:"name"`
	Class         string            `json:"class"`
	Documentation string            `json:"documentation,omitempty"`
	Ports         []Port            `json:"ports,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

type Port struct {
	Name      string `json:"name"`
	Direction string `json:"direction,omitempty"`
}

type Documentation struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// CacheReport tells the result of caching a KAR file.
type CacheReport struct {
	Archive     string   `json:"archive"`
	Objects     []string `json:"objects"`
	SideEffects []string `json:"sideEffects"`
}

// Window is a window opened in the workspace.
type Window struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	LSID       string            `json:"lsid"`
	Kind       string            `json:"kind"`
	Body       string            `json:"body"`
	Properties map[string]string `json:"properties,omitempty"`
	OpenedAt   time.Time         `json:"openedAt"`
}

// OpenResult is the response of opening an object.
type OpenResult struct {
	Opened bool    `json:"opened"`
	Window *Window `json:"window,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Proxy is a token issued for a user in a domain.
type Proxy struct {
	Domain  string    `json:"domain"`
	User    string    `json:"user"`
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
