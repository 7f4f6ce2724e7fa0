package models

// DirEntry is one entry of a workspace directory listing.
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// SearchMatch is one line matching a content search.
type SearchMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// FileSearchResult is the output of a content search over a workspace.
type FileSearchResult struct {
	Pattern   string        `json:"pattern"`
	Path      string        `json:"path"`
	Matches   []SearchMatch `json:"matches"`
	Truncated bool          `json:"truncated,omitempty"`
}

// FileReadRequest reads one file from a session's workspace.
type FileReadRequest struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Offset    int64  `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// FileReadResponse carries the text read from a workspace file.
type FileReadResponse struct {
	Success   bool   `json:"success"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	Offset    int64  `json:"offset"`
	Size      int64  `json:"size"`
	Truncated bool   `json:"truncated"`
}

// FileListRequest lists a directory of a session's workspace.
type FileListRequest struct {
	SessionID  string `json:"sessionId"`
	Path       string `json:"path,omitempty"`
	ShowHidden bool   `json:"showHidden,omitempty"`
}

// FileListResponse lists directory entries, directories first.
type FileListResponse struct {
	Success bool       `json:"success"`
	Path    string     `json:"path"`
	Entries []DirEntry `json:"entries"`
}

// FileSearchRequest searches a session's workspace for a regular expression.
type FileSearchRequest struct {
	SessionID  string `json:"sessionId"`
	Pattern    string `json:"pattern"`
	Path       string `json:"path,omitempty"`
	Include    string `json:"include,omitempty"`
	MaxMatches int    `json:"maxMatches,omitempty"`
}

// FileSearchResponse reports the matching lines of a search.
type FileSearchResponse struct {
	Success   bool          `json:"success"`
	Pattern   string        `json:"pattern"`
	Path      string        `json:"path"`
	Matches   []SearchMatch `json:"matches"`
	Total     int           `json:"total"`
	Truncated bool          `json:"truncated"`
}
