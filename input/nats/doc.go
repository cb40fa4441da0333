// Package nats provides the optional NATS input. It lets devices that publish
// on NATS share the MQTT mapping table.
//
// Each MQTT filter is translated with SubjectsFor and each received subject is
// turned back into a '/' topic with TopicFor before it reaches the handler, so
// mapping rules never see the NATS form.
//
//	sensors/+/temp  ->  sensors.*.temp
//	home/#          ->  home.>  and  home
//
// Overlapping filters produce overlapping subscriptions, and NATS delivers a
// message once per matching subscription. The input delivers a message only
// through the first subject that matches it.
package nats
