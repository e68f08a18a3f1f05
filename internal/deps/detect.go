// Package deps detects the dependency manifests a repository carries and
// maps each one to the build ecosystem it indicates.
package deps

import (
	"path"

	"github.com/microsoft/gitagu/internal/model"
)

// DependencyFiles is the fixed set of manifest filenames the service
// recognizes. LanguageByFilename must stay in 1:1 correspondence with it.
var DependencyFiles = []string{
	"requirements.txt",
	"package.json",
	"pom.xml",
	"build.gradle",
}

// LanguageByFilename maps each known manifest filename to its language label
var LanguageByFilename = map[string]string{
	"requirements.txt": "Python",
	"package.json":     "JavaScript/TypeScript",
	"pom.xml":          "Java",
	"build.gradle":     "Java/Kotlin",
}

// IsManifest reports whether name is one of the known manifest filenames
func IsManifest(name string) bool {
	_, ok := LanguageByFilename[name]
	return ok
}

// ManifestPaths returns the tree paths of known manifests, one per known
// filename. A manifest at any depth counts; when the same filename appears
// more than once the first occurrence in tree order wins.
func ManifestPaths(files []model.FileEntry) []string {
	seen := make(map[string]bool, len(DependencyFiles))
	var paths []string

	for _, f := range files {
		if f.Type != "blob" {
			continue
		}
		name := path.Base(f.Path)
		if !IsManifest(name) || seen[name] {
			continue
		}
		seen[name] = true
		paths = append(paths, f.Path)
	}

	return paths
}

// Detect pairs each known manifest present in the tree with its fetched
// content. Paths missing from contents (fetch failed or skipped) are
// omitted; filenames outside the known set never appear in the result.
func Detect(files []model.FileEntry, contents map[string]string) []model.DependencyFile {
	var detected []model.DependencyFile

	for _, p := range ManifestPaths(files) {
		content, ok := contents[p]
		if !ok {
			continue
		}
		name := path.Base(p)
		detected = append(detected, model.DependencyFile{
			Filename: name,
			Content:  content,
			Language: LanguageByFilename[name],
		})
	}

	return detected
}
