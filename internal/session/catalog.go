package session

// ModelSpec describes a known embedding model.
type ModelSpec struct {
	Size     string
	Speed    string
	Language string
	Quality  string
	Note     string
}

// KnownModels are the embedding models the backend ships with.
var KnownModels = map[string]ModelSpec{
	"all-MiniLM-L6-v2": {
		Size: "~80MB", Speed: "fast", Language: "EN", Quality: "medium",
		Note: "English only. Smallest download.",
	},
	"paraphrase-multilingual-MiniLM-L12-v2": {
		Size: "~120MB", Speed: "fast", Language: "Multilingual", Quality: "good",
		Note: "Backend default. Good balance for mixed-language code.",
	},
	"paraphrase-multilingual-mpnet-base-v2": {
		Size: "~1GB", Speed: "slower", Language: "Multilingual", Quality: "very good",
		Note: "Better recall, noticeably slower indexing.",
	},
	"intfloat/multilingual-e5-large": {
		Size: "~2.2GB", Speed: "slow", Language: "Multilingual", Quality: "best",
		Note: "Highest quality. Needs plenty of memory.",
	},
}

// LookupModel returns the info for name, or a placeholder row.
func LookupModel(name string) (ModelSpec, bool) {
	info, ok := KnownModels[name]
	if !ok {
		return ModelSpec{Size: "?", Speed: "?", Language: "?", Quality: "?"}, false
	}
	return info, true
}
