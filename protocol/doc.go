package protocol

// This package implements the AT command dialect spoken by the ESP-01 WiFi
// co-processor: encoding outbound command lines and classifying the untyped
// byte stream that comes back.
//
// - `Command`    - An instruction to the co-processor, rendered as one line.
// - `Config`     - The immutable WiFi configuration commands are rendered from.
// - `Response`   - A classified terminal line or asynchronous event.
// - `Classifier` - Incremental scanner turning received bytes into Responses.
//
// === General Syntax
//
// - command lines are `\r\n` terminated
// - numeric fields are decimal with no leading zeros
// - string fields are embedded verbatim between double quotes, nothing is
//   escaped (callers must not pass quotes or control characters)
//
// === Commands
//
//  ```
//    AT+RST
//    AT+CWMODE=<1|2|3>
//    AT+CWJAP="<ssid>","<password>"
//    AT+CWSAP="<ssid>","<password>",<channel>,<enc>,<max_sta>,<hide:0|1>
//    AT+CIPSTA="<ip>","<gw>","<mask>"
//    AT+CIPAP="<ip>","<gw>","<mask>"
//    AT+CIPMUX=<0|1>
//    AT+CIPSERVER=<0|1>,<port>
//    AT+CIPSEND=<client_id>,<len>
//  ```
//
// === Responses
//
// Terminal lines and events are recognised by how the received bytes end:
//
//  ```
//    ready | OK | SEND OK | ERROR | FAIL
//    WIFI CONNECTED | WIFI DISCONNECT | WIFI GOT IP
//    <id>,CONNECT | <id>,CLOSED
//  ```
//
// `SEND OK` is checked before `OK`, otherwise every completed send would be
// mistaken for a plain acknowledgement.
//
// === Client data
//
//  ```
//    +IPD,<client_id>,<len>:<payload>
//  ```
//
// The payload carries no terminator. The frame is accepted when exactly
// `<len>` bytes follow the colon: either the receive queue runs dry or the
// next byte can start what follows a frame (a line break, `<id>,CLOSED` or
// another `+IPD`). Any other byte means the declared length was wrong and the
// frame is discarded. Either way that byte is classified as usual. `<len>` is
// parsed as a byte, so a single frame carries 0 to 255 bytes.
//
