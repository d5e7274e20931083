package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Forum configuration
	ForumURL   string
	ForumToken string

	// Application configuration
	FeedsFile    string
	Port         string
	WorkerCount  int
	FetchTimeout int
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
