package browse

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking intercepts page requests and drops the configured
// resource types. Extraction only reads the DOM, so images, fonts, media
// and stylesheets are dead weight on every crawled page.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[normalizeResourceType(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if blockSet[normalizeResourceType(string(ctx.Request.Type()))] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()

	return nil
}

// normalizeResourceType maps both config spellings ("Images", "font") and
// CDP type names ("Image", "Font") onto one key.
func normalizeResourceType(t string) string {
	return strings.TrimSuffix(strings.ToLower(t), "s")
}
