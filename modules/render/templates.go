package render

import "html/template"

type chatRowData struct {
	Class string
	Tone  string
	Item  chatItem
}

func chatRow(class, tone string, item chatItem) chatRowData {
	return chatRowData{Class: class, Tone: tone, Item: item}
}

var templates = template.Must(template.New("fragments").
	Funcs(template.FuncMap{"chatRow": chatRow}).
	Parse(`
{{- define "empty" -}}
<div class="empty-state"><i class="fas fa-{{.Icon}}"></i><p>{{.Text}}</p></div>
{{- end -}}

{{- define "counters" -}}
<div class="stat-card"><span class="stat-value" id="active-chats-count">{{.ActiveChats}}</span><span class="stat-label">Active chats</span></div>
<div class="stat-card"><span class="stat-value" id="closed-chats-count">{{.ClosedChats}}</span><span class="stat-label">Closed chats</span></div>
<div class="stat-card"><span class="stat-value" id="total-users-count">{{.TotalUsers}}</span><span class="stat-label">Users</span></div>
<div class="stat-card"><span class="stat-value" id="total-messages-count">{{.TotalMessages}}</span><span class="stat-label">Messages</span></div>
{{- end -}}

{{- define "messages" -}}
{{- range . -}}
<div class="message-item message-{{.Kind}}"{{if .Href}} data-href="{{.Href}}"{{end}}>
<div class="message-header">
<span class="message-user"><i class="fas fa-{{.Icon}} {{.Tone}}"></i> {{.Username}}</span>
<div class="flex items-center gap-2">
{{- if .ChatID}}<span class="chat-id">#{{.ChatID}}</span>{{end -}}
<span class="message-time">{{.Time}}</span>
</div>
</div>
<div class="message-text">{{.Text}}</div>
</div>
{{- end -}}
{{- end -}}

{{- define "chat" -}}
<div class="message-item {{.Class}}"{{if .Item.Href}} data-href="{{.Item.Href}}"{{end}}>
<div class="message-header">
<span class="message-user"><i class="fas fa-circle {{.Tone}}"></i> {{.Item.Username}}</span>
<span class="chat-id">#{{.Item.ChatID}}</span>
</div>
<div class="message-time">{{.Item.Time}}</div>
</div>
{{- end -}}

{{- define "chats" -}}
{{- range .Active}}{{template "chat" (chatRow "active-chat" "tone-success" .)}}{{end -}}
{{- if .Closed -}}
<div class="separator"><i class="fas fa-history"></i> Closed chats</div>
{{- range .Closed}}{{template "chat" (chatRow "closed-chat" "tone-danger" .)}}{{end -}}
{{- end -}}
{{- end -}}

{{- define "notifications" -}}
<div id="notifications-container">
{{- range . -}}
<div class="notification {{.Severity}}{{if not .Retiring}} show{{end}}" data-id="{{.ID}}">
<i class="fas fa-{{.Icon}}"></i><span>{{.Message}}</span>
<button class="notification-close" data-dismiss="{{.ID}}"><i class="fas fa-times"></i></button>
</div>
{{- end -}}
</div>
{{- end -}}

{{- define "status" -}}
<span class="status-indicator {{if .Online}}status-online{{else}}status-offline{{end}}"></span>
<span id="connection-text">{{.Text}}</span>
{{- end -}}
`))
