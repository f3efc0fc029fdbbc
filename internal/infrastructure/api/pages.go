package api

import (
	"html/template"
	"net/http"
	"strings"

	"archie-core-shopify-app/internal/domain"
)

const appBridgeScript = "https://cdn.shopify.com/shopifycloud/app-bridge.js"

var fullPageRedirectPage = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="shopify-api-key" content="{{.APIKey}}">
<script src="` + appBridgeScript + `"></script>
</head>
<body>
<script>
  if (window.top === window.self) {
    window.location.href = {{.URL}};
  } else {
    open({{.URL}}, "_top");
  }
</script>
</body>
</html>
`))

var tokenPage = template.Must(template.New("token").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="shopify-api-key" content="{{.APIKey}}">
<script src="` + appBridgeScript + `"></script>
</head>
<body>
<script>
  shopify.idToken().then(function (token) {
    var target = {{.Target}};
    var separator = target.indexOf("?") === -1 ? "?" : "&";
    window.location.href = target + separator + "token=" + encodeURIComponent(token);
  });
</script>
</body>
</html>
`))

// fullPageRedirect leaves the admin iframe before navigating to target
func fullPageRedirect(w http.ResponseWriter, apiKey string, target string) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return fullPageRedirectPage.Execute(w, struct {
		APIKey string
		URL    string
	}{APIKey: apiKey, URL: target})
}

// redirectTo sends the browser to target, breaking out of the iframe when requested from one
func redirectTo(w http.ResponseWriter, r *http.Request, embedded bool, apiKey string, target string) {
	if embedded && r.URL.Query().Get("embedded") == "1" {
		if err := fullPageRedirect(w, apiKey, target); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// safeTarget keeps only same-origin relative paths
func safeTarget(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

// homeURL is where a merchant lands once authenticated and billed
func homeURL(embedded bool, apiKey string, shop domain.ShopDomain) string {
	if embedded {
		return "https://" + shop.String() + "/admin/apps/" + apiKey
	}
	return "/?shop=" + shop.String()
}
