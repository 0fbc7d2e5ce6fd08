package webhook

import (
	"html/template"
	"net/http"

	"zcommit/internal"
	"zcommit/pkg/zcommit"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>zcommit</title></head>
<body>
<p><i>Welcome to zcommit.</i></p>

<p>zcommit sends zephyr notifications when it receives an HTTP POST request
to a URL. It understands push POST-backs from GitHub and a generic
query-string form.</p>

<h1>URL structure</h1>

<p>The URL you post to is structured as follows:
<tt>{{.Base}}/$type/$key1/$value1/$key2/$value2/...</tt>.
For example, <tt>{{.Base}}/github/class/zcommit/instance/commit</tt>
is parsed as having type <tt>github</tt>, class <tt>zcommit</tt> and
instance <tt>commit</tt>.</p>

<h1>GitHub</h1>

<p>Set your POST-back URL to <tt>{{.Base}}/github/class/$classname</tt>,
followed by any of the following optional key/value parameters:</p>

<ul>
<li><tt>/instance/$instance</tt> (defaults to the first 8 characters of each commit id)</li>
<li><tt>/zsig/$zsig</tt></li>
<li><tt>/sender/$sender</tt> (defaults to <tt>{{.Sender}}</tt>)</li>
</ul>

<p>One zephyr is sent per commit. A GET request to the same URL shows what would be sent.</p>

<h1>Generic</h1>

<p>POST to <tt>{{.Base}}/default?class=$class&amp;instance=$instance&amp;zsig=$zsig&amp;message=$message</tt>.
<tt>class</tt> and <tt>instance</tt> are required.</p>
</body>
</html>
`))

type indexData struct {
	Base   string
	Sender string
}

// IndexHandler renders the help page describing the URL structure.
type IndexHandler struct {
	base string
}

// NewIndexHandler creates the help page for a service mounted at base.
func NewIndexHandler(base string) *IndexHandler {
	if base == "/" {
		base = ""
	}
	return &IndexHandler{base: base}
}

func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("index", r.Method)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexTemplate.Execute(w, indexData{Base: h.base, Sender: zcommit.DefaultSender})
}
