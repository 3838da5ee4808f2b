// Package binding composes API payloads from domain values.
package binding

import (
	"github.com/opst/karfab/pkg/api/types"
	"github.com/opst/karfab/pkg/auth"
	"github.com/opst/karfab/pkg/cache"
	"github.com/opst/karfab/pkg/cache/index"
	"github.com/opst/karfab/pkg/kar/handler"
	"github.com/opst/karfab/pkg/workspace"
)

func ComposeRecord(r index.Record) types.Record {
	return types.Record{
		LSID:     r.LSID.String(),
		Entry:    r.Entry,
		Type:     r.Type,
		Handler:  r.Handler,
		Archive:  r.Archive,
		Object:   r.Object,
		CachedAt: r.CachedAt,
	}
}

func ComposeObject(o *cache.Object) types.Object {
	obj := types.Object{
		LSID:     o.LSID.String(),
		Entry:    o.Entry,
		Type:     o.Type,
		Handler:  o.Handler,
		Archive:  o.Archive,
		CachedAt: o.CachedAt,
	}
	switch v := o.Value.(type) {
	case *handler.ActorMetadata:
		obj.Actor = composeActor(v)
	case *handler.Documentation:
		obj.Documentation = &types.Documentation{Title: v.Title, Text: v.Text}
	}
	return obj
}

func composeActor(am *handler.ActorMetadata) *types.Actor {
	a := &types.Actor{
		Name:          am.Name,
		Class:         am.Class,
		Documentation: am.Documentation(),
	}
	for _, p := range am.Ports {
		a.Ports = append(a.Ports, types.Port{Name: p.Name, Direction: p.Direction()})
	}
	for _, p := range am.Properties {
		if p.Name == "documentation" {
			continue
		}
		if a.Properties == nil {
			a.Properties = map[string]string{}
		}
		a.Properties[p.Name] = p.Value
	}
	return a
}

func ComposeReport(r cache.Report) types.CacheReport {
	rep := types.CacheReport{
		Archive:     r.Archive,
		Objects:     make([]string, 0, len(r.Objects)),
		SideEffects: make([]string, 0, len(r.SideEffects)),
	}
	for _, o := range r.Objects {
		rep.Objects = append(rep.Objects, o.LSID.String())
	}
	for _, l := range r.SideEffects {
		rep.SideEffects = append(rep.SideEffects, l.String())
	}
	return rep
}

func ComposeWindow(w *workspace.Window) *types.Window {
	props := map[string]string{}
	for k, v := range w.Props {
		props[k] = v
	}
	return &types.Window{
		ID:         w.ID,
		Title:      w.Title,
		LSID:       w.LSID,
		Kind:       w.Kind,
		Body:       w.Body,
		Properties: props,
		OpenedAt:   w.OpenedAt,
	}
}

func ComposeProxy(p auth.Proxy) types.Proxy {
	return types.Proxy{
		Domain:  p.Domain,
		User:    p.User,
		Token:   p.Token,
		Expires: p.Expires,
	}
}
