package text

const (
	// CodeFence marks the end of a completion that ran into a chunk footer.
	CodeFence = "\n```"
)
