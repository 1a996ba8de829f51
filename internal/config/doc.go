// Package config loads ripple.yaml, the settings file read by the ripple
// command.
//
// The file may be YAML or JSON. Durations are strings such as "16ms".
//
//	name: editor
//	frame:
//	  delay: 4ms
//	  viewport: {width: 1440, height: 900}
//	metrics:
//	  namespace: editor
//	  buckets: [0.001, 0.004, 0.016, 0.033]
//	devtools:
//	  enabled: true
//	  addr: 127.0.0.1:7070
//	log:
//	  level: debug
//	  format: json
//
// Watch reloads the file when it changes:
//
//	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        live.Set(cfg)
//	    }
//	})
package config
