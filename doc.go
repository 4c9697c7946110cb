/*
go-ptztrack estimates the pan, tilt and focal length of a broadcast PTZ
camera from its video, frame by frame.

Features seen in a keyframe are kept as rays in the camera tripod frame.
Each new frame tracks those features with optical flow, periodically checks
them against the keyframe with SIFT matching, then solves for the PTZ state
that projects the rays onto the tracked pixels.

The camera package holds the projection model, the tracker package the per
frame session and the cv package the OpenCV backed feature collaborators.
This package provides the grayscale frame sources the tracker consumes.

See example code and usage in the example subdirectory.
*/
package ptztrack
