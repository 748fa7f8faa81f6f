package config

// DefaultConfigTOML is a complete, commented sample childproc.toml.
const DefaultConfigTOML = `# childproc job file

[runner]
# log_level = "info"            # debug, info, warn, error
# log_format = "json"           # json, text
# metrics_file = ""             # Prometheus textfile written after the run
# report_format = "text"        # text, json, yaml
# stop_on_failure = false       # skip remaining jobs after a failure

# include = ["jobs.d/*.toml"]   # merge jobs from other files

[jobs.hello]
path = "/bin/echo"              # REQUIRED: absolute program path, no $PATH search
args = ["Hello, World!"]
# description = ""
# environment = { FOO = "bar" } # values support ${ENV} and %(here)s
# inherit_environment = true    # false: environment replaces the inherited one
# stdin = "null"                # inherit, piped, null
# stdout = "piped"
# stderr = "piped"
# input = ""                    # written to stdin (requires stdin = "piped")
# priority = 999                # lower runs first (0-999), ties by name
# exitcodes = [0]               # exit codes counted as success
# stdout_logfile = ""           # captured stdout is also written here
# stderr_logfile = ""
# strip_ansi = false            # remove ANSI escapes from logfiles
# logfile_maxbytes = ""         # rotate logfiles past this size (e.g. "10MB")
# logfile_backups = 0           # rotated copies to keep; 0 truncates
`
