package inventory

import (
	"strings"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// deniedDirs are pruned without descent; skipping the subtree entirely
// is much cheaper than filtering every file in it.
var deniedDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".pytest_cache": true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
	".terraform":   true,
	"coverage":     true,
	".next":        true,
	".nuxt":        true,
}

// binaryExtensions lists the formats worth classifying as binary up
// front, without opening the file.
var binaryExtensions = map[string]bool{
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".tiff": true, ".tif": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true, ".jar": true, ".war": true, ".ear": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".o": true, ".obj": true, ".bin": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".wav": true, ".flac": true, ".ogg": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".pyc": true, ".pyo": true, ".class": true, ".pickle": true, ".pkl": true,
}

// languageByExtension resolves a file extension to the technology name
// used for tech-alias resolution in internal/patternlib and for the
// per-language line-count rollup in RepoMetadata.
var languageByExtension = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".scala": "scala",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".rb":    "ruby",
	".swift": "swift",
	".vue":   "javascript",
	".svelte": "javascript",
}

// testPathMarkers flags a file as test code when any path segment (or the
// file stem) matches one of these, independent of language.
var testPathMarkers = []string{"test", "tests", "spec", "specs", "__tests__"}

var configExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".conf": true, ".config": true, ".xml": true,
	".env": true,
}

var docExtensions = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".adoc": true,
}

var buildFileNames = map[string]bool{
	"go.mod": true, "go.sum": true, "package.json": true, "package-lock.json": true,
	"yarn.lock": true, "pnpm-lock.yaml": true, "Cargo.toml": true, "Cargo.lock": true,
	"pom.xml": true, "build.gradle": true, "build.gradle.kts": true, "requirements.txt": true,
	"pyproject.toml": true, "setup.py": true, "composer.json": true, "Gemfile": true,
	"Dockerfile": true, "docker-compose.yml": true, "Makefile": true, "CMakeLists.txt": true,
}

// classifyRole assigns the FileRole used by applicability/report grouping.
func classifyRole(relPath, base, ext string) gatetypes.FileRole {
	if buildFileNames[base] {
		return gatetypes.RoleBuild
	}
	if docExtensions[ext] {
		return gatetypes.RoleDoc
	}
	if configExtensions[ext] {
		return gatetypes.RoleConfig
	}
	if isTestPath(relPath) {
		return gatetypes.RoleTestCode
	}
	if _, known := languageByExtension[ext]; known {
		return gatetypes.RoleSourceCode
	}
	return gatetypes.RoleOther
}

func isTestPath(relPath string) bool {
	lower := strings.ToLower(relPath)
	for _, seg := range strings.Split(lower, "/") {
		stem := strings.TrimSuffix(seg, filepathExt(seg))
		for _, marker := range testPathMarkers {
			if seg == marker || strings.HasPrefix(stem, marker+"_") || strings.HasSuffix(stem, "_"+marker) || strings.HasSuffix(stem, "."+marker) {
				return true
			}
		}
	}
	return false
}

func filepathExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
