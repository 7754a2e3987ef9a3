package models

// Asset records where a generated file came from and where it was archived.
// Assets are stored as a list under meta["assets"], index-aligned with
// Job.AssetURLs.
type Asset struct {
	OriginalURL  string `json:"original_url"`
	LocalPath    string `json:"local_path,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	VendorStatus string `json:"vendor_status,omitempty"`
}

// MetaAssets is the meta key holding the asset provenance list.
const MetaAssets = "assets"

// AssetsFromMeta decodes the provenance list from job meta. It accepts both
// the typed form written by this process and the generic form produced by a
// JSON round trip.
func AssetsFromMeta(meta map[string]any) []Asset {
	switch v := meta[MetaAssets].(type) {
	case []Asset:
		return v
	case []any:
		out := make([]Asset, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			a := Asset{}
			a.OriginalURL, _ = m["original_url"].(string)
			a.LocalPath, _ = m["local_path"].(string)
			a.ContentType, _ = m["content_type"].(string)
			a.VendorStatus, _ = m["vendor_status"].(string)
			out = append(out, a)
		}
		return out
	}
	return nil
}
