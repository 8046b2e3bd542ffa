// Package domain is the boundary between the protocol engine and the code
// generated from the protocol schema.
//
// The generator emits, per schema domain, one *Domain value plus typed
// Command and Event descriptors registered on it at package init:
//
//	var Domain = domain.New("Target")
//	var CreateTarget = domain.NewCommand[CreateTargetParams, CreateTargetResult](Domain, "createTarget")
//	var TargetCreated = domain.NewEvent[TargetCreatedEvent](Domain, "targetCreated")
//
// A Catalog groups the domains a program links in. Both are built once at
// startup and only read afterwards, so the engine looks them up without locks.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"devtools-rpc/codec"
)

// DecodeFunc turns a wire payload into a typed value.
type DecodeFunc func(data []byte) (any, error)

// CommandInfo describes one command of a domain.
type CommandInfo struct {
	Method string                                    // "Domain.command"
	Encode func(params any) (json.RawMessage, error) // Typed params → wire params
	Decode DecodeFunc                                // Wire result → typed result
}

// EventInfo describes one event of a domain.
type EventInfo struct {
	Method string // "Domain.event"
	Decode DecodeFunc
}

// Domain is a named group of commands and events.
type Domain struct {
	Name     string
	Commands map[string]*CommandInfo // Keyed by command name without the domain prefix
	Events   map[string]*EventInfo   // Keyed by event name without the domain prefix
}

// New creates an empty domain. Commands and events are added by NewCommand and
// NewEvent while the generated package initializes.
func New(name string) *Domain {
	return &Domain{
		Name:     name,
		Commands: make(map[string]*CommandInfo),
		Events:   make(map[string]*EventInfo),
	}
}

// Command is the typed handle of a command taking P and answering R.
type Command[P, R any] struct {
	method string
}

func (c Command[P, R]) Method() string { return c.method }

// NewCommand registers a command on d and returns its typed handle.
func NewCommand[P, R any](d *Domain, name string) Command[P, R] {
	method := d.Name + "." + name
	if _, dup := d.Commands[name]; dup {
		panic(fmt.Sprintf("domain: command %s registered twice", method))
	}

	d.Commands[name] = &CommandInfo{
		Method: method,
		Encode: func(params any) (json.RawMessage, error) {
			return codec.Default.Encode(params)
		},
		Decode: decodeAs[R],
	}
	return Command[P, R]{method: method}
}

// Event is the typed handle of an event carrying T.
type Event[T any] struct {
	domain string
	name   string
}

func (e Event[T]) Domain() string { return e.domain }
func (e Event[T]) Name() string   { return e.name }
func (e Event[T]) Method() string { return e.domain + "." + e.name }

// NewEvent registers an event on d and returns its typed handle.
func NewEvent[T any](d *Domain, name string) Event[T] {
	if _, dup := d.Events[name]; dup {
		panic(fmt.Sprintf("domain: event %s.%s registered twice", d.Name, name))
	}

	d.Events[name] = &EventInfo{
		Method: d.Name + "." + name,
		Decode: decodeAs[T],
	}
	return Event[T]{domain: d.Name, name: name}
}

func decodeAs[T any](data []byte) (any, error) {
	var v T
	if err := codec.Default.Decode(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Catalog maps domain names to domains.
type Catalog struct {
	domains map[string]*Domain
}

// NewCatalog builds a catalog. It panics when two domains share a name.
func NewCatalog(domains ...*Domain) *Catalog {
	c := &Catalog{domains: make(map[string]*Domain, len(domains))}
	for _, d := range domains {
		if _, dup := c.domains[d.Name]; dup {
			panic(fmt.Sprintf("domain: %s added to catalog twice", d.Name))
		}
		c.domains[d.Name] = d
	}
	return c
}

// Domain looks up a domain by its case-sensitive name. Safe on a nil catalog.
func (c *Catalog) Domain(name string) (*Domain, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.domains[name]
	return d, ok
}

// Command looks up a command by domain and command name.
func (c *Catalog) Command(domainName, name string) (*CommandInfo, bool) {
	d, ok := c.Domain(domainName)
	if !ok {
		return nil, false
	}
	info, ok := d.Commands[name]
	return info, ok
}

// Event looks up an event by domain and event name.
func (c *Catalog) Event(domainName, name string) (*EventInfo, bool) {
	d, ok := c.Domain(domainName)
	if !ok {
		return nil, false
	}
	info, ok := d.Events[name]
	return info, ok
}

// Domains returns the sorted domain names.
func (c *Catalog) Domains() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.domains))
	for name := range c.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
