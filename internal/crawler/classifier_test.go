package crawler

import "testing"

// TestClassify tests scope and priority assignment.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		inScope  bool
		priority int
	}{
		{
			name:     "same host is in scope",
			url:      "https://example.test/about",
			inScope:  true,
			priority: PriorityDefault,
		},
		{
			name:     "product URL gets priority 0",
			url:      "https://example.test/products/42",
			inScope:  true,
			priority: PriorityProduct,
		},
		{
			name:     "product match is case insensitive",
			url:      "https://example.test/Catalog/PRODUCT-7",
			inScope:  true,
			priority: PriorityProduct,
		},
		{
			name:     "product in query also counts",
			url:      "https://example.test/search?q=product",
			inScope:  true,
			priority: PriorityProduct,
		},
		{
			name:     "other host is out of scope",
			url:      "https://other.test/products",
			inScope:  false,
			priority: PriorityProduct,
		},
		{
			name:     "subdomain is out of scope",
			url:      "https://shop.example.test/",
			inScope:  false,
			priority: PriorityDefault,
		},
		{
			name:     "different port is out of scope",
			url:      "https://example.test:8443/",
			inScope:  false,
			priority: PriorityDefault,
		},
		{
			name:     "unparsable URL is out of scope",
			url:      "https://example.test/%zz",
			inScope:  false,
			priority: PriorityDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(tt.url, "example.test")
			if got.InScope != tt.inScope {
				t.Errorf("InScope: expected %v, got %v", tt.inScope, got.InScope)
			}
			if got.Priority != tt.priority {
				t.Errorf("Priority: expected %d, got %d", tt.priority, got.Priority)
			}
		})
	}
}
