package page

import (
	"strconv"
	"strings"
)

// Namespace is a MediaWiki page namespace.
type Namespace int32

const (
	NamespaceMedia         Namespace = -2
	NamespaceSpecial       Namespace = -1
	NamespaceMain          Namespace = 0
	NamespaceTalk          Namespace = 1
	NamespaceUser          Namespace = 2
	NamespaceUserTalk      Namespace = 3
	NamespaceProject       Namespace = 4
	NamespaceProjectTalk   Namespace = 5
	NamespaceFile          Namespace = 6
	NamespaceFileTalk      Namespace = 7
	NamespaceMediaWiki     Namespace = 8
	NamespaceMediaWikiTalk Namespace = 9
	NamespaceTemplate      Namespace = 10
	NamespaceTemplateTalk  Namespace = 11
	NamespaceHelp          Namespace = 12
	NamespaceHelpTalk      Namespace = 13
	NamespaceCategory      Namespace = 14
	NamespaceCategoryTalk  Namespace = 15
	NamespaceModule        Namespace = 828
	NamespaceModuleTalk    Namespace = 829
)

var namespaceNames = map[Namespace]string{
	NamespaceMedia:         "Media",
	NamespaceSpecial:       "Special",
	NamespaceMain:          "Main",
	NamespaceTalk:          "Talk",
	NamespaceUser:          "User",
	NamespaceUserTalk:      "User talk",
	NamespaceProject:       "Project",
	NamespaceProjectTalk:   "Project talk",
	NamespaceFile:          "File",
	NamespaceFileTalk:      "File talk",
	NamespaceMediaWiki:     "MediaWiki",
	NamespaceMediaWikiTalk: "MediaWiki talk",
	NamespaceTemplate:      "Template",
	NamespaceTemplateTalk:  "Template talk",
	NamespaceHelp:          "Help",
	NamespaceHelpTalk:      "Help talk",
	NamespaceCategory:      "Category",
	NamespaceCategoryTalk:  "Category talk",
	NamespaceModule:        "Module",
	NamespaceModuleTalk:    "Module talk",
}

// IsKnown reports whether the namespace is one of the built-in MediaWiki
// namespaces.
func (n Namespace) IsKnown() bool {
	_, ok := namespaceNames[n]
	return ok
}

// String returns the namespace's display name. Unknown namespaces are
// rendered as "Other(<code>)".
func (n Namespace) String() string {
	if name, ok := namespaceNames[n]; ok {
		return name
	}
	return "Other(" + strconv.Itoa(int(n)) + ")"
}

// Prefix returns the title prefix used in page URLs, e.g. "User_talk:".
// The main namespace has no prefix.
func (n Namespace) Prefix() string {
	if n == NamespaceMain {
		return ""
	}
	name, ok := namespaceNames[n]
	if !ok {
		return "Unknown:"
	}
	return strings.ReplaceAll(name, " ", "_") + ":"
}

// ParseNamespace resolves a display name as produced by String.
func ParseNamespace(name string) (Namespace, bool) {
	for ns, candidate := range namespaceNames {
		if strings.EqualFold(candidate, name) {
			return ns, true
		}
	}
	return 0, false
}
