package whiteboard

// Once a space exists its url is published to the room as SpaceURL and
// forwarded unchanged.
const exSpaceURL = MsgSpaceURL
