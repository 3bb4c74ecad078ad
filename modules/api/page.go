package api

import (
	"html/template"
	"strings"

	"github.com/example/pulse-dashboard/modules/view"
)

const pageTitle = "PulseAI Support Dashboard"

type pageData struct {
	Title  string
	Panels map[string]template.HTML
}

// The shell embeds the current panels and replaces them in place as /live
// frames arrive. Message items link through /open so the unknown user stays
// inert.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
<div id="panel-status" class="connection-status">{{index .Panels "status"}}</div>
</header>
<section id="panel-stats" class="stats-grid">{{index .Panels "stats"}}</section>
<main>
<section class="messages">
<input id="search-input" type="search" placeholder="Search messages" autocomplete="off">
<div id="panel-messages" class="messages-list">{{index .Panels "messages"}}</div>
</section>
<aside id="panel-chats" class="chats">{{index .Panels "chats"}}</aside>
</main>
<div id="panel-notifications">{{index .Panels "notifications"}}</div>
<script>
(function () {
  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var live = new WebSocket(scheme + location.host + "/live");
  live.onmessage = function (e) {
    var frame = JSON.parse(e.data);
    var el = document.getElementById("panel-" + frame.panel);
    if (el) { el.innerHTML = frame.html; }
  };
  document.getElementById("search-input").addEventListener("input", function (e) {
    fetch("/search", {
      method: "POST",
      headers: {"Content-Type": "application/json"},
      body: JSON.stringify({q: e.target.value})
    });
  });
  document.addEventListener("click", function (e) {
    var dismiss = e.target.closest("[data-dismiss]");
    if (dismiss) {
      fetch("/notifications/" + encodeURIComponent(dismiss.dataset.dismiss), {method: "DELETE"});
      return;
    }
    var item = e.target.closest("[data-href]");
    if (item && item.dataset.href.indexOf("/chat/") === 0) {
      window.open("/open/" + item.dataset.href.slice(6), "_blank");
    }
  });
})();
</script>
</body>
</html>
`))

func renderPage(d Dashboard) (string, error) {
	data := pageData{
		Title:  pageTitle,
		Panels: make(map[string]template.HTML, len(view.Panels)),
	}
	for _, name := range view.Panels {
		html, _ := d.Panel(name)
		data.Panels[name] = html
	}

	var b strings.Builder
	if err := pageTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
