package offlineworker

import (
	"net/http/httptest"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    RequestClass
	}{
		{"navigation by fetch mode", "/about", map[string]string{"Sec-Fetch-Mode": "navigate"}, ClassNavigation},
		{"navigation by accept header", "/", map[string]string{"Accept": "text/html,application/xhtml+xml"}, ClassNavigation},
		{"non-navigate fetch mode is not navigation", "/data", map[string]string{"Sec-Fetch-Mode": "cors", "Accept": "text/html"}, ClassDefault},
		{"style destination", "/theme", map[string]string{"Sec-Fetch-Dest": "style"}, ClassStaticAsset},
		{"script destination", "/bundle", map[string]string{"Sec-Fetch-Dest": "script"}, ClassStaticAsset},
		{"image extension", "/img/logo.png", nil, ClassStaticAsset},
		{"font extension", "/fonts/main.woff2", nil, ClassStaticAsset},
		{"wasm extension", "/mod.wasm", nil, ClassStaticAsset},
		{"api path", "/api/items", nil, ClassAPI},
		{"graphql path", "/graphql", nil, ClassAPI},
		{"static extension wins over api path", "/api/schema.json", nil, ClassStaticAsset},
		{"anything else", "/some/other", nil, ClassDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := Classify(req); got != tt.want {
				t.Fatalf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRouteNavigationStrategyIsConfigurable(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")

	worker, _ := newTestWorker(t, nil, nil)
	if route := worker.route(req); route.strategy != strategyStaleWhileRevalidate || route.bucket != worker.gen.Static {
		t.Fatalf("Default navigation route is %+v", route)
	}

	worker, _ = newTestWorker(t, nil, func(c *Config) {
		c.NavigationNetworkFirst = true
	})
	if route := worker.route(req); route.strategy != strategyNetworkFirst || route.bucket != worker.gen.Static {
		t.Fatalf("Network-first navigation route is %+v", route)
	}
}

func TestRouteBuckets(t *testing.T) {
	worker, _ := newTestWorker(t, nil, nil)

	asset := httptest.NewRequest("GET", "/app.css", nil)
	if route := worker.route(asset); route.bucket != worker.gen.Static || route.strategy != strategyStaleWhileRevalidate {
		t.Fatalf("Asset route is %+v", route)
	}

	api := httptest.NewRequest("GET", "/api/items", nil)
	if route := worker.route(api); route.bucket != worker.gen.Dynamic || route.strategy != strategyNetworkFirst {
		t.Fatalf("API route is %+v", route)
	}

	other := httptest.NewRequest("GET", "/whatever", nil)
	if route := worker.route(other); route.bucket != worker.gen.Dynamic || route.strategy != strategyStaleWhileRevalidate {
		t.Fatalf("Default route is %+v", route)
	}
}
