// Package dispatcher routes incoming JSON-RPC requests to the tool,
// resource, prompt, and template registries, and owns the background task
// registry used for long-running tool calls.
package dispatcher

import (
	"context"
	"encoding/base64"
	"strings"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
	"goa.design/mcpcore/internal/obs"
	"goa.design/mcpcore/mcp/registry"
	"goa.design/mcpcore/mcp/session"
	"goa.design/mcpcore/mcp/task"
	"goa.design/mcpcore/mcp/wire"
)

const taskMetaKey = "modelcontextprotocol.io/task"

// sessionLogLevelKey is the Session.Put/Get key logging/setLevel stores the
// client-requested minimum log level under. The core never self-emits
// notifications/message today, so nothing reads this back yet; recording it
// keeps the session state correct for when a component starts doing so,
// rather than silently discarding the client's request.
const sessionLogLevelKey = "logging.level"

// ServerInfo identifies the server in the initialize handshake.
type ServerInfo struct {
	Name    string
	Version string
}

// Dispatcher routes JSON-RPC method calls against its registries.
type Dispatcher struct {
	Tools     *registry.ToolRegistry
	Resources *registry.ResourceRegistry
	Templates *registry.TemplateRegistry
	Prompts   *registry.PromptRegistry
	Tasks     *task.Registry
	// Hub tracks every session connected across every transport so that
	// list_changed notifications can be broadcast to all of them, not just
	// the session that triggered the change.
	Hub      *session.Hub
	Info     ServerInfo
	PageSize int
	Obs      *obs.Provider
}

// New constructs a Dispatcher over empty registries and a task registry
// bound to ctx's lifetime.
func New(ctx context.Context, info ServerInfo, provider *obs.Provider) *Dispatcher {
	if provider == nil {
		noop := obs.NewNoopProvider()
		provider = &noop
	}
	return &Dispatcher{
		Tools:     registry.NewToolRegistry(),
		Resources: registry.NewResourceRegistry(),
		Templates: registry.NewTemplateRegistry(),
		Prompts:   registry.NewPromptRegistry(),
		Tasks:     task.NewRegistry(ctx),
		Hub:       session.NewHub(),
		Info:      info,
		PageSize:  50,
		Obs:       provider,
	}
}

// NotifyAll broadcasts method/params as a notification to every session
// tracked by the Hub. Used for the list_changed family of notifications,
// where a registry mutation on one connection must reach every peer.
func (d *Dispatcher) NotifyAll(ctx context.Context, method string, params jsonvalue.Value) {
	d.Hub.Broadcast(ctx, method, params)
}

// NotifyToolsListChanged broadcasts notifications/tools/list_changed to
// every connected session.
func (d *Dispatcher) NotifyToolsListChanged(ctx context.Context) {
	d.NotifyAll(ctx, "notifications/tools/list_changed", jsonvalue.FromObject(jsonvalue.NewObject()))
}

// NotifyResourcesListChanged broadcasts notifications/resources/list_changed
// to every connected session.
func (d *Dispatcher) NotifyResourcesListChanged(ctx context.Context) {
	d.NotifyAll(ctx, "notifications/resources/list_changed", jsonvalue.FromObject(jsonvalue.NewObject()))
}

// NotifyPromptsListChanged broadcasts notifications/prompts/list_changed to
// every connected session.
func (d *Dispatcher) NotifyPromptsListChanged(ctx context.Context) {
	d.NotifyAll(ctx, "notifications/prompts/list_changed", jsonvalue.FromObject(jsonvalue.NewObject()))
}

// NotifyRootsListChanged broadcasts notifications/roots/list_changed to
// every connected session.
func (d *Dispatcher) NotifyRootsListChanged(ctx context.Context) {
	d.NotifyAll(ctx, "notifications/roots/list_changed", jsonvalue.FromObject(jsonvalue.NewObject()))
}

// Dispatch routes msg to its handler and returns the response message, or
// nil for a notification (which produces no response). sess may be nil for
// transports that have no session concept (stdio).
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, msg *wire.Message) *wire.Message {
	if msg.IsNotification() {
		d.handleNotification(ctx, sess, msg)
		return nil
	}
	if !msg.IsRequest() {
		return nil
	}

	params, err := msg.ParamsValue()
	if err != nil {
		return wire.NewErrorMessage(msg.ID, mcperr.CodeInvalidParams, "malformed params: "+err.Error(), jsonvalue.Null())
	}

	sessionID := ""
	if sess != nil {
		sessionID = sess.ID()
	}
	ctx = withRequestContext(ctx, msg.IDString(), sessionID, progressToken(params), metaMap(params))

	ctx, span := d.Obs.Trace.Start(ctx, "dispatch."+msg.Method)
	defer span.End()
	d.Obs.Log.Debug(ctx, "dispatching request", "method", msg.Method, "id", msg.IDString())

	result, dispatchErr := d.route(ctx, sess, msg.Method, params)
	if dispatchErr != nil {
		d.Obs.Log.Error(ctx, "dispatch failed", "method", msg.Method, "error", dispatchErr)
		d.Obs.Metrics.IncCounter("dispatch.error", 1, "method", msg.Method)
		code := mcperr.Code(dispatchErr)
		var data jsonvalue.Value
		if ce, ok := dispatchErr.(*mcperr.CoreError); ok && ce.RPCData != nil {
			if v, ok2 := ce.RPCData.(jsonvalue.Value); ok2 {
				data = v
			}
		}
		if data.IsNull() {
			data = jsonvalue.Null()
		}
		return wire.NewErrorMessage(msg.ID, code, dispatchErr.Error(), data)
	}

	d.Obs.Log.Info(ctx, "dispatch succeeded", "method", msg.Method)
	d.Obs.Metrics.IncCounter("dispatch.ok", 1, "method", msg.Method)
	resp, err := wire.NewResultMessage(msg.ID, result)
	if err != nil {
		return wire.NewErrorMessage(msg.ID, mcperr.CodeInternalError, "failed to encode result: "+err.Error(), jsonvalue.Null())
	}
	return resp
}

func (d *Dispatcher) handleNotification(ctx context.Context, sess *session.Session, msg *wire.Message) {
	if msg.Method == "notifications/cancelled" {
		params, err := msg.ParamsValue()
		if err != nil {
			return
		}
		if taskID, ok := stringField(params, "taskId"); ok {
			_ = d.Tasks.Cancel(taskID, "notifications/cancelled")
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, sess *session.Session, method string, params jsonvalue.Value) (jsonvalue.Value, error) {
	switch method {
	case "initialize":
		return d.handleInitialize(sess, params)
	case "ping":
		return jsonvalue.FromObject(jsonvalue.NewObject()), nil
	case "tools/list":
		return d.handleToolsList(params)
	case "tools/call":
		return d.handleToolsCall(ctx, sess, params)
	case "resources/list":
		return d.handleResourcesList(params)
	case "resources/read":
		return d.handleResourcesRead(params)
	case "resources/templates/list":
		return d.handleTemplatesList(params)
	case "prompts/list":
		return d.handlePromptsList(params)
	case "prompts/get":
		return d.handlePromptsGet(params)
	case "completion/complete":
		return d.handleCompletionComplete(params)
	case "tasks/get":
		return d.handleTasksGet(params)
	case "logging/setLevel":
		return d.handleLoggingSetLevel(sess, params)
	default:
		return jsonvalue.Null(), mcperr.Newf(mcperr.NotFound, "unknown method %q", method)
	}
}

func (d *Dispatcher) handleInitialize(sess *session.Session, params jsonvalue.Value) (jsonvalue.Value, error) {
	if sess != nil {
		if caps, ok := params.Get("capabilities"); ok {
			sess.SetCapabilities(caps)
		}
	}

	capsObj := jsonvalue.NewObject()
	capsObj.Set("tools", toolsCapability())
	capsObj.Set("resources", jsonvalue.FromObject(jsonvalue.NewObject()))
	capsObj.Set("prompts", jsonvalue.FromObject(jsonvalue.NewObject()))
	capsObj.Set("logging", jsonvalue.FromObject(jsonvalue.NewObject()))

	serverInfo := jsonvalue.NewObject()
	serverInfo.Set("name", jsonvalue.String(d.Info.Name))
	serverInfo.Set("version", jsonvalue.String(d.Info.Version))

	out := jsonvalue.NewObject()
	out.Set("protocolVersion", firstNonNull(params, "protocolVersion", jsonvalue.String("2025-06-18")))
	out.Set("capabilities", jsonvalue.FromObject(capsObj))
	out.Set("serverInfo", jsonvalue.FromObject(serverInfo))
	return jsonvalue.FromObject(out), nil
}

func toolsCapability() jsonvalue.Value {
	o := jsonvalue.NewObject()
	o.Set("listChanged", jsonvalue.Bool(true))
	return jsonvalue.FromObject(o)
}

func firstNonNull(params jsonvalue.Value, key string, fallback jsonvalue.Value) jsonvalue.Value {
	if v, ok := params.Get(key); ok && !v.IsNull() {
		return v
	}
	return fallback
}

func (d *Dispatcher) handleToolsList(params jsonvalue.Value) (jsonvalue.Value, error) {
	cursor, _ := stringField(params, "cursor")
	page, next := registry.Paginate(d.Tools.List(), cursor, d.PageSize)

	arr := make([]jsonvalue.Value, len(page))
	for i, t := range page {
		arr[i] = toolToValue(t)
	}
	out := jsonvalue.NewObject()
	out.Set("tools", jsonvalue.Array(arr...))
	if next != "" {
		out.Set("nextCursor", jsonvalue.String(next))
	}
	return jsonvalue.FromObject(out), nil
}

func toolToValue(t *registry.Tool) jsonvalue.Value {
	o := jsonvalue.NewObject()
	o.Set("name", jsonvalue.String(t.Name))
	if t.Title != "" {
		o.Set("title", jsonvalue.String(t.Title))
	}
	if t.Description != "" {
		o.Set("description", jsonvalue.String(t.Description))
	}
	if !t.InputSchema.IsNull() {
		o.Set("inputSchema", t.InputSchema)
	}
	if !t.OutputSchema.IsNull() {
		o.Set("outputSchema", t.OutputSchema)
	}
	return jsonvalue.FromObject(o)
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, sess *session.Session, params jsonvalue.Value) (jsonvalue.Value, error) {
	name, ok := stringField(params, "name")
	if !ok || strings.TrimSpace(name) == "" {
		return jsonvalue.Null(), mcperr.New(mcperr.ValidationError, "tool name must not be empty")
	}
	tool, ok := d.Tools.Get(name)
	if !ok {
		return jsonvalue.Null(), mcperr.Newf(mcperr.NotFound, "unknown tool %q", name)
	}

	args, ok := params.Get("arguments")
	if !ok {
		args = jsonvalue.FromObject(jsonvalue.NewObject())
	}
	if err := tool.ValidateArguments(args); err != nil {
		return jsonvalue.Null(), err
	}

	meta, _ := params.Get("_meta")
	wantsTask := false
	if !meta.IsNull() {
		if _, ok := meta.Get(taskMetaKey); ok {
			wantsTask = true
		}
	}

	if wantsTask && tool.TaskSupport != registry.TaskSupportNone {
		return d.submitAsTask(ctx, sess, tool, args)
	}
	if wantsTask && tool.TaskSupport == registry.TaskSupportNone {
		return jsonvalue.Null(), mcperr.Newf(mcperr.ValidationError, "tool %q does not support background tasks", name)
	}

	output, err := Invoke(ctx, tool, args, true)
	if err != nil {
		return jsonvalue.Null(), err
	}
	return wrapToolResult(output), nil
}

// wrapToolResult adapts a tool's raw return value to the standard
// {content:[...], isError} shape callers expect from tools/call. A tool
// that already returns an object with a "content" key is passed through
// (isError defaults to false if absent); anything else becomes a single
// text content block.
func wrapToolResult(output jsonvalue.Value) jsonvalue.Value {
	if obj, ok := output.Object(); ok {
		if _, hasContent := obj.Get("content"); hasContent {
			if _, hasErr := obj.Get("isError"); !hasErr {
				obj.Set("isError", jsonvalue.Bool(false))
			}
			return output
		}
	}
	block := jsonvalue.NewObject()
	block.Set("type", jsonvalue.String("text"))
	block.Set("text", jsonvalue.String(textFromValue(output)))
	out := jsonvalue.NewObject()
	out.Set("content", jsonvalue.Array(jsonvalue.FromObject(block)))
	out.Set("isError", jsonvalue.Bool(false))
	return jsonvalue.FromObject(out)
}

// textFromValue renders output as the text of a single content block:
// strings pass through verbatim, everything else is JSON-encoded (numbers
// render without quotes, matching jsonvalue's integral-float formatting).
func textFromValue(output jsonvalue.Value) string {
	if s, ok := output.String(); ok {
		return s
	}
	data, err := output.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

func (d *Dispatcher) submitAsTask(ctx context.Context, sess *session.Session, tool *registry.Tool, args jsonvalue.Value) (jsonvalue.Value, error) {
	var notify task.Notifier
	if sess != nil {
		notify = func(ctx context.Context, method string, params jsonvalue.Value) {
			if err := sess.Notify(ctx, method, params); err != nil {
				d.Obs.Log.Error(ctx, "failed to deliver task notification", "method", method, "error", err)
			}
		}
	}

	taskID := d.Tasks.Submit(ctx, tool.Name, args, 0, func(ctx context.Context, args jsonvalue.Value) (jsonvalue.Value, error) {
		return Invoke(ctx, tool, args, false)
	}, notify)

	taskMeta := jsonvalue.NewObject()
	taskMeta.Set("taskId", jsonvalue.String(taskID))
	metaObj := jsonvalue.NewObject()
	metaObj.Set(taskMetaKey, jsonvalue.FromObject(taskMeta))

	out := jsonvalue.NewObject()
	out.Set("_meta", jsonvalue.FromObject(metaObj))
	return jsonvalue.FromObject(out), nil
}

// handleTasksGet is the synchronous registry-read counterpart to the
// notifications/tasks/* lifecycle events: it lets a client fetch a task's
// current status and, once completed, its result, without having to rely
// solely on notification delivery.
func (d *Dispatcher) handleTasksGet(params jsonvalue.Value) (jsonvalue.Value, error) {
	taskID, ok := stringField(params, "taskId")
	if !ok || taskID == "" {
		return jsonvalue.Null(), mcperr.New(mcperr.ValidationError, "taskId must not be empty")
	}
	rec, err := d.Tasks.Status(taskID)
	if err != nil {
		return jsonvalue.Null(), err
	}

	out := jsonvalue.NewObject()
	out.Set("taskId", jsonvalue.String(rec.TaskID))
	out.Set("status", jsonvalue.String(string(rec.Status)))
	if rec.StatusMessage != "" {
		out.Set("statusMessage", jsonvalue.String(rec.StatusMessage))
	}
	if rec.Status == task.StatusCompleted {
		out.Set("result", wrapToolResult(rec.Result))
	}
	if rec.Status == task.StatusFailed && rec.Err != nil {
		out.Set("error", jsonvalue.String(rec.Err.Error()))
	}
	return jsonvalue.FromObject(out), nil
}

func (d *Dispatcher) handleLoggingSetLevel(sess *session.Session, params jsonvalue.Value) (jsonvalue.Value, error) {
	level, ok := stringField(params, "level")
	if ok && sess != nil {
		sess.Put(sessionLogLevelKey, level)
	}
	return jsonvalue.FromObject(jsonvalue.NewObject()), nil
}

func (d *Dispatcher) handleResourcesList(params jsonvalue.Value) (jsonvalue.Value, error) {
	cursor, _ := stringField(params, "cursor")
	page, next := registry.Paginate(d.Resources.List(), cursor, d.PageSize)

	arr := make([]jsonvalue.Value, len(page))
	for i, r := range page {
		o := jsonvalue.NewObject()
		o.Set("uri", jsonvalue.String(r.URI))
		if r.Name != "" {
			o.Set("name", jsonvalue.String(r.Name))
		}
		if r.MimeType != "" {
			o.Set("mimeType", jsonvalue.String(r.MimeType))
		}
		arr[i] = jsonvalue.FromObject(o)
	}
	out := jsonvalue.NewObject()
	out.Set("resources", jsonvalue.Array(arr...))
	if next != "" {
		out.Set("nextCursor", jsonvalue.String(next))
	}
	return jsonvalue.FromObject(out), nil
}

func (d *Dispatcher) handleResourcesRead(params jsonvalue.Value) (jsonvalue.Value, error) {
	uri, ok := stringField(params, "uri")
	if !ok || uri == "" {
		return jsonvalue.Null(), mcperr.New(mcperr.ValidationError, "resource uri must not be empty")
	}

	if res, ok := d.Resources.Get(uri); ok {
		content, err := res.Read(nil)
		if err != nil {
			return jsonvalue.Null(), mcperr.Wrap(mcperr.InternalError, "resource read failed", err)
		}
		return contentsResult(uri, res.MimeType, content), nil
	}

	if tmpl, matchParams, ok := d.Templates.Match(uri); ok {
		content, err := tmpl.Provider(matchParams)
		if err != nil {
			return jsonvalue.Null(), mcperr.Wrap(mcperr.InternalError, "resource template read failed", err)
		}
		return contentsResult(uri, tmpl.MimeType, content), nil
	}

	return jsonvalue.Null(), mcperr.Newf(mcperr.NotFound, "unknown resource %q", uri)
}

func contentsResult(uri, mimeType string, content registry.Content) jsonvalue.Value {
	c := jsonvalue.NewObject()
	c.Set("uri", jsonvalue.String(uri))
	if mimeType != "" {
		c.Set("mimeType", jsonvalue.String(mimeType))
	} else if content.MimeType != "" {
		c.Set("mimeType", jsonvalue.String(content.MimeType))
	}
	if content.IsBinary {
		c.Set("blob", jsonvalue.String(base64.StdEncoding.EncodeToString(content.Bytes)))
	} else {
		c.Set("text", jsonvalue.String(content.Text))
	}
	out := jsonvalue.NewObject()
	out.Set("contents", jsonvalue.Array(jsonvalue.FromObject(c)))
	return jsonvalue.FromObject(out)
}

func (d *Dispatcher) handleTemplatesList(params jsonvalue.Value) (jsonvalue.Value, error) {
	cursor, _ := stringField(params, "cursor")
	page, next := registry.Paginate(d.Templates.List(), cursor, d.PageSize)

	arr := make([]jsonvalue.Value, len(page))
	for i, t := range page {
		o := jsonvalue.NewObject()
		o.Set("uriTemplate", jsonvalue.String(t.URITemplate))
		if t.Name != "" {
			o.Set("name", jsonvalue.String(t.Name))
		}
		if t.MimeType != "" {
			o.Set("mimeType", jsonvalue.String(t.MimeType))
		}
		arr[i] = jsonvalue.FromObject(o)
	}
	out := jsonvalue.NewObject()
	out.Set("resourceTemplates", jsonvalue.Array(arr...))
	if next != "" {
		out.Set("nextCursor", jsonvalue.String(next))
	}
	return jsonvalue.FromObject(out), nil
}

func (d *Dispatcher) handlePromptsList(params jsonvalue.Value) (jsonvalue.Value, error) {
	cursor, _ := stringField(params, "cursor")
	page, next := registry.Paginate(d.Prompts.List(), cursor, d.PageSize)

	arr := make([]jsonvalue.Value, len(page))
	for i, p := range page {
		o := jsonvalue.NewObject()
		o.Set("name", jsonvalue.String(p.Name))
		if p.Description != "" {
			o.Set("description", jsonvalue.String(p.Description))
		}
		arr[i] = jsonvalue.FromObject(o)
	}
	out := jsonvalue.NewObject()
	out.Set("prompts", jsonvalue.Array(arr...))
	if next != "" {
		out.Set("nextCursor", jsonvalue.String(next))
	}
	return jsonvalue.FromObject(out), nil
}

func (d *Dispatcher) handlePromptsGet(params jsonvalue.Value) (jsonvalue.Value, error) {
	name, ok := stringField(params, "name")
	if !ok || name == "" {
		return jsonvalue.Null(), mcperr.New(mcperr.ValidationError, "prompt name must not be empty")
	}
	prompt, ok := d.Prompts.Get(name)
	if !ok {
		return jsonvalue.Null(), mcperr.Newf(mcperr.NotFound, "unknown prompt %q", name)
	}

	args := map[string]string{}
	if rawArgs, ok := params.Get("arguments"); ok {
		if obj, ok := rawArgs.Object(); ok {
			obj.Range(func(key string, v jsonvalue.Value) bool {
				if s, ok := v.String(); ok {
					args[key] = s
				}
				return true
			})
		}
	}

	msgs, err := prompt.Render(args)
	if err != nil {
		return jsonvalue.Null(), mcperr.Wrap(mcperr.InternalError, "prompt render failed", err)
	}
	arr := make([]jsonvalue.Value, len(msgs))
	for i, m := range msgs {
		content := jsonvalue.NewObject()
		content.Set("type", jsonvalue.String("text"))
		content.Set("text", jsonvalue.String(m.Text))
		msgObj := jsonvalue.NewObject()
		msgObj.Set("role", jsonvalue.String(m.Role))
		msgObj.Set("content", jsonvalue.FromObject(content))
		arr[i] = jsonvalue.FromObject(msgObj)
	}
	out := jsonvalue.NewObject()
	out.Set("messages", jsonvalue.Array(arr...))
	return jsonvalue.FromObject(out), nil
}

func (d *Dispatcher) handleCompletionComplete(params jsonvalue.Value) (jsonvalue.Value, error) {
	ref, ok := params.Get("ref")
	if !ok {
		return jsonvalue.Null(), mcperr.New(mcperr.ValidationError, "completion ref is required")
	}
	refType, _ := stringField(ref, "type")

	var values []jsonvalue.Value
	switch refType {
	case "ref/prompt":
		name, _ := stringField(ref, "name")
		if p, ok := d.Prompts.Get(name); ok {
			for _, a := range p.Arguments {
				values = append(values, jsonvalue.String(a.Name))
			}
		}
	case "ref/resource":
		for _, r := range d.Resources.List() {
			values = append(values, jsonvalue.String(r.URI))
		}
	default:
		return jsonvalue.Null(), mcperr.Newf(mcperr.ValidationError, "unsupported completion ref type %q", refType)
	}

	completion := jsonvalue.NewObject()
	completion.Set("values", jsonvalue.Array(values...))
	completion.Set("total", jsonvalue.Int(int64(len(values))))
	completion.Set("hasMore", jsonvalue.Bool(false))
	out := jsonvalue.NewObject()
	out.Set("completion", jsonvalue.FromObject(completion))
	return jsonvalue.FromObject(out), nil
}

func stringField(v jsonvalue.Value, key string) (string, bool) {
	field, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return field.String()
}

func progressToken(params jsonvalue.Value) string {
	meta, ok := params.Get("_meta")
	if !ok {
		return ""
	}
	tok, _ := stringField(meta, "progressToken")
	return tok
}

func metaMap(params jsonvalue.Value) map[string]any {
	meta, ok := params.Get("_meta")
	if !ok || !meta.IsObject() {
		return nil
	}
	m, _ := meta.ToAny().(map[string]any)
	return m
}
