package whiteboard

const ActionInitialize = "initialize"
